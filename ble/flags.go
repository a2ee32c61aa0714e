package ble

import (
  "strconv"
  "strings"
)

type Flags int

const (
  // Run active scans rather than passive scans. Sensor frames are broadcast in regular
  // advertisements, so passive scans are enough and cheaper.
  FlagScanTypeActive Flags = 1 << iota
  // Let the controller drop advertisements from unknown devices. Must be configured with
  // `SetAllowListedAddresses()`.
  FlagEnableDeviceAllowList
)

func (f Flags) Has(flag Flags) bool {
  return f & flag == flag
}

func (f Flags) String() string {
  var flags []string

  if f.Has(FlagScanTypeActive) {
    flags = append(flags, "active scan")
  }

  if f.Has(FlagEnableDeviceAllowList) {
    flags = append(flags, "device allow-list")
  }

  if len(flags) == 0 {
    return "none"
  }

  return strings.Join(flags, ", ")
}

// scanParams maps the flags to the values expected by LESetScanParameters.
func (f Flags) scanParams() (scanType, filterPolicy) {
  st, fp := scanTypePassive, filterPolicyAcceptAll

  if f.Has(FlagScanTypeActive) {
    st = scanTypeActive
  }

  if f.Has(FlagEnableDeviceAllowList) {
    fp = filterPolicyAllowListedOnly
  }

  return st, fp
}

type scanType uint8

const (
  scanTypePassive scanType = iota
  scanTypeActive
)

func (s scanType) String() string {
  switch s {
  case scanTypeActive:
    return "Active"
  case scanTypePassive:
    return "Passive"
  default:
    panic("unknown scanType value: " + strconv.Itoa(int(s)))
  }
}

type filterPolicy uint8

const (
  filterPolicyAcceptAll filterPolicy = iota
  filterPolicyAllowListedOnly
)

func (f filterPolicy) String() string {
  switch f {
  case filterPolicyAcceptAll:
    return "Accept All"
  case filterPolicyAllowListedOnly:
    return "Allow-listed Only"
  default:
    panic("unknown filterPolicy value: " + strconv.Itoa(int(f)))
  }
}

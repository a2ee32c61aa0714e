package ble

import "testing"

func TestFlags_ScanParams(t *testing.T) {
  tests := []struct {
    flags Flags
    scanType scanType
    filterPolicy filterPolicy
  }{
    {0, scanTypePassive, filterPolicyAcceptAll},
    {FlagScanTypeActive, scanTypeActive, filterPolicyAcceptAll},
    {FlagEnableDeviceAllowList, scanTypePassive, filterPolicyAllowListedOnly},
    {FlagScanTypeActive | FlagEnableDeviceAllowList, scanTypeActive, filterPolicyAllowListedOnly},
  }

  for _, tt := range tests {
    st, fp := tt.flags.scanParams()

    if st != tt.scanType || fp != tt.filterPolicy {
      t.Fatalf(
        "%v.scanParams(): got (%v, %v), wanted (%v, %v)",
        tt.flags, st, fp, tt.scanType, tt.filterPolicy,
      )
    }
  }
}

func TestFlags_String(t *testing.T) {
  if got, want := Flags(0).String(), "none"; got != want {
    t.Fatalf("String(): got %q, wanted %q", got, want)
  }

  if got, want := (FlagScanTypeActive | FlagEnableDeviceAllowList).String(), "active scan, device allow-list"; got != want {
    t.Fatalf("String(): got %q, wanted %q", got, want)
  }
}

func TestCanonicalUUID(t *testing.T) {
  got := CanonicalUUID(UUID16(0x181a))

  if len(got) != 2 || got[0] != 0x18 || got[1] != 0x1a {
    t.Fatalf("CanonicalUUID(0x181a): got % x, wanted 18 1a", got)
  }
}

package device

import (
  "strings"

  "github.com/rs/zerolog/log"
)

// DeviceSpec is the parsed form of a `key=value,key=value` device flag.
type DeviceSpec map[string]string

const (
  DeviceSpecFieldName = "name"
  DeviceSpecFieldAddress = "addr"
  DeviceSpecFieldMAC = "mac"
)

func NewDeviceSpec(s string) DeviceSpec {
  spec := DeviceSpec{}

  for _, entry := range strings.Split(s, ",") {
    key, value, ok := strings.Cut(entry, "=")

    if !ok {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
  }

  return spec
}

func (ds DeviceSpec) Name() string {
  return ds[DeviceSpecFieldName]
}

// Addr accepts both `addr=` and `mac=`, the former taking precedence.
func (ds DeviceSpec) Addr() string {
  if addr := ds[DeviceSpecFieldAddress]; addr != "" {
    return addr
  }

  return ds[DeviceSpecFieldMAC]
}

func (ds DeviceSpec) Help() string {
  return `Supported parameters:
addr (string, required): MAC address of the sensor (alias: mac)
name (string): Display name of the sensor, used for Home Assistant discovery and metrics`
}

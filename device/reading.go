package device

import (
  "fmt"
)

// Reading is a single measurement decoded from a sensor frame.
type Reading struct {
  MAC string `json:"mac"`
  Temperature float32 `json:"temperature"`
  Humidity float32 `json:"humidity"`
  BatteryVoltage float32 `json:"battery_voltage"`
  BatteryLevel uint8 `json:"battery_level"`
  Counter uint8 `json:"counter"`
}

func (r Reading) String() string {
  return fmt.Sprintf("Reading[MAC=%v,Counter=%d,Temperature=%.2f,Humidity=%.2f%%,Battery=%d%%,BatteryVoltage=%.3fV]",
    r.MAC, r.Counter, r.Temperature, r.Humidity, r.BatteryLevel, r.BatteryVoltage)
}

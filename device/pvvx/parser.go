package pvvx

import (
  "encoding/binary"
  "net"

  "github.com/pkg/errors"
  "github.com/robertof/go-ble2mqtt/device"
  "github.com/robertof/go-ble2mqtt/utils"
)

// Frame layout of the custom pvvx advertising format (all little endian):
//
//   [0:6]   MAC address, low byte first
//   [6:8]   int16 temperature, 0.01 °C
//   [8:10]  uint16 humidity, 0.01 %
//   [10:12] uint16 battery, mV
//   [12]    battery level, %
//   [13]    measurement counter
//   [14]    flags (unused)
const (
  FrameLen = 15
  MinFrameLen = 14
)

// Decode turns the service data payload of a sensor advertisement into a reading. Only the first
// 14 bytes are considered.
func Decode(data []byte) (reading device.Reading, err error) {
  if len(data) < MinFrameLen {
    return reading, errors.Wrapf(device.ErrMalformedFrame,
      "unexpected data length (%d), want >= %d", len(data), MinFrameLen)
  }

  bo := binary.LittleEndian

  // the address is stored back to front.
  reading.MAC = device.CanonicalMAC(net.HardwareAddr(utils.Reverse(data[0:6])))

  rawTemp := int16(bo.Uint16(data[6:])) // signed, see TestDecode_NegativeTemperature.
  rawHumidity := bo.Uint16(data[8:])
  rawBattery := bo.Uint16(data[10:])

  reading.Temperature = float32(rawTemp) / 100.0
  reading.Humidity = float32(rawHumidity) / 100.0
  reading.BatteryVoltage = float32(rawBattery) / 1000.0
  reading.BatteryLevel = data[12]
  reading.Counter = data[13]

  return reading, nil
}

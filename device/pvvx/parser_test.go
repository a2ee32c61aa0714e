package pvvx_test

import (
  "errors"
  "reflect"
  "testing"

  "github.com/robertof/go-ble2mqtt/device"
  "github.com/robertof/go-ble2mqtt/device/pvvx"
)

func TestDecode(t *testing.T) {
  data := []byte{
    0x01, 0x02, 0x03, 0x04, 0x05, 0x06, // MAC, low byte first
    0x39, 0x30, // 12345 -> 123.45 °C
    0x61, 0x15, // 5473 -> 54.73 %
    0x86, 0x0b, // 2950 mV
    0x57, // 87 %
    0x03, // counter
    0x05, // flags
  }

  got, err := pvvx.Decode(data)

  if err != nil {
    t.Fatalf("Decode(%x) got error: %v", data, err)
  }

  want := device.Reading{
    MAC:            "06:05:04:03:02:01",
    Temperature:    123.45,
    Humidity:       54.73,
    BatteryVoltage: 2.95,
    BatteryLevel:   87,
    Counter:        3,
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Decode(%x): got %+#v, wanted %+#v", data, got, want)
  }
}

func TestDecode_WithoutFlags(t *testing.T) {
  data := []byte{
    0xff, 0xee, 0xdd, 0xcc, 0xbb, 0xaa,
    0x00, 0x00,
    0x10, 0x27, // 10000 -> 100 %
    0x00, 0x00,
    0x00,
    0xff,
  }

  got, err := pvvx.Decode(data)

  if err != nil {
    t.Fatalf("Decode(%x) got error: %v", data, err)
  }

  want := device.Reading{
    MAC:      "aa:bb:cc:dd:ee:ff",
    Humidity: 100,
    Counter:  255,
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Decode(%x): got %+#v, wanted %+#v", data, got, want)
  }
}

// The temperature field is declared as int16 by the firmware and is decoded as such: a set high
// bit yields a negative temperature rather than a large positive one.
func TestDecode_NegativeTemperature(t *testing.T) {
  data := []byte{
    0x01, 0x02, 0x03, 0x04, 0x05, 0x06,
    0x38, 0xff, // -200 -> -2.00 °C
    0x00, 0x00,
    0x00, 0x00,
    0x00,
    0x00,
  }

  got, err := pvvx.Decode(data)

  if err != nil {
    t.Fatalf("Decode(%x) got error: %v", data, err)
  }

  if got.Temperature != -2 {
    t.Fatalf("Decode(%x): got temperature %v, wanted -2", data, got.Temperature)
  }
}

// The battery level is passed through as-is, even when out of the 0-100 range.
func TestDecode_BatteryLevelNotClamped(t *testing.T) {
  data := make([]byte, pvvx.FrameLen)
  data[12] = 0xc8

  got, err := pvvx.Decode(data)

  if err != nil {
    t.Fatalf("Decode(%x) got error: %v", data, err)
  }

  if got.BatteryLevel != 200 {
    t.Fatalf("Decode(%x): got battery level %d, wanted 200", data, got.BatteryLevel)
  }
}

func TestDecode_ShortFrame(t *testing.T) {
  for _, n := range []int{0, 1, 6, 13} {
    data := make([]byte, n)

    _, err := pvvx.Decode(data)

    if !errors.Is(err, device.ErrMalformedFrame) {
      t.Fatalf("Decode(%d bytes): got error %v, wanted %v", n, err, device.ErrMalformedFrame)
    }
  }
}

func TestDecode_Deterministic(t *testing.T) {
  data := []byte{
    0x10, 0x20, 0x30, 0x40, 0x50, 0x60,
    0xd2, 0x09, 0x61, 0x15, 0x22, 0x0c, 0x64, 0x2a,
  }

  first, _ := pvvx.Decode(data)
  second, _ := pvvx.Decode(data)

  if !reflect.DeepEqual(first, second) {
    t.Fatalf("Decode(%x) is not deterministic: %+v != %+v", data, first, second)
  }

  // the input must not be modified by the address reversal.
  if data[0] != 0x10 || data[5] != 0x60 {
    t.Fatalf("Decode(%x) modified its input", data)
  }
}

func TestIsSensorFrame(t *testing.T) {
  tests := []struct {
    name string
    uuid []byte
    want bool
  }{
    {"16 bit", []byte{0x18, 0x1a}, true},
    {"marker at offset 0", []byte{0x18, 0x1a, 0x00, 0x00}, true},
    {"marker at last offset", []byte{0x00, 0x00, 0x18, 0x1a}, true},
    {"128 bit base UUID", []byte{
      0x00, 0x00, 0x18, 0x1a, 0x00, 0x00, 0x10, 0x00,
      0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
    }, true},
    {"reversed pair", []byte{0x1a, 0x18}, false},
    {"non adjacent", []byte{0x18, 0x00, 0x1a}, false},
    {"unrelated", []byte{0xfe, 0x95}, false},
    {"truncated", []byte{0x18}, false},
    {"empty", nil, false},
  }

  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      if got := pvvx.IsSensorFrame(tt.uuid); got != tt.want {
        t.Fatalf("IsSensorFrame(%x): got %v, wanted %v", tt.uuid, got, tt.want)
      }
    })
  }
}

package device_test

import (
  "errors"
  "reflect"
  "testing"

  "github.com/robertof/go-ble2mqtt/device"
)

func TestNew_CanonicalizesAddress(t *testing.T) {
  d, err := device.New("A4:C1:38:0B:5E:ED", "Kitchen")

  if err != nil {
    t.Fatalf("New() got error: %v", err)
  }

  if got, want := d.MAC(), "a4:c1:38:0b:5e:ed"; got != want {
    t.Fatalf("MAC(): got %q, wanted %q", got, want)
  }

  if got, want := d.Name(), "Kitchen"; got != want {
    t.Fatalf("Name(): got %q, wanted %q", got, want)
  }
}

func TestNew_DefaultName(t *testing.T) {
  d, err := device.New("a4:c1:38:0b:5e:ed", "")

  if err != nil {
    t.Fatalf("New() got error: %v", err)
  }

  if got, want := d.Name(), "sensor-a4c1380b5eed"; got != want {
    t.Fatalf("Name(): got %q, wanted %q", got, want)
  }
}

func TestNew_RejectsInvalidAddress(t *testing.T) {
  for _, addr := range []string{"", "not-a-mac", "00:00:00:00:00:00:00:e0"} {
    _, err := device.New(addr, "x")

    if !errors.Is(err, device.ErrInvalidData) {
      t.Fatalf("New(%q): got error %v, wanted %v", addr, err, device.ErrInvalidData)
    }
  }
}

func TestNewDeviceSpec(t *testing.T) {
  got := device.NewDeviceSpec("addr = AA:BB:CC:DD:EE:FF, name=Living Room,garbage")

  want := device.DeviceSpec{
    "addr": "AA:BB:CC:DD:EE:FF",
    "name": "Living Room",
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("NewDeviceSpec(): got %#v, wanted %#v", got, want)
  }
}

func TestDeviceSpec_MACAlias(t *testing.T) {
  spec := device.NewDeviceSpec("mac=11:22:33:44:55:66")

  if got, want := spec.Addr(), "11:22:33:44:55:66"; got != want {
    t.Fatalf("Addr(): got %q, wanted %q", got, want)
  }
}

func TestAllowList(t *testing.T) {
  d, err := device.New("AA:BB:CC:DD:EE:FF", "")

  if err != nil {
    t.Fatalf("New() got error: %v", err)
  }

  l := device.NewAllowList([]*device.Device{d})

  if !l.IsAllowed("aa:bb:cc:dd:ee:ff") {
    t.Fatalf("IsAllowed(): allow-listed address rejected")
  }

  if l.IsAllowed("11:22:33:44:55:66") {
    t.Fatalf("IsAllowed(): unknown address accepted")
  }

  // comparison is exact: the canonical rendering is lowercase.
  if l.IsAllowed("AA:BB:CC:DD:EE:FF") {
    t.Fatalf("IsAllowed(): uppercase rendering accepted")
  }
}

func TestAllowList_NilAllowsAll(t *testing.T) {
  var l device.AllowList

  if !l.IsAllowed("11:22:33:44:55:66") {
    t.Fatalf("IsAllowed() on nil allow-list rejected an address")
  }

  if device.NewAllowList(nil) != nil {
    t.Fatalf("NewAllowList(nil) should return a nil allow-list")
  }
}

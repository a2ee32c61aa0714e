package device

import (
  "fmt"
  "net"
  "strings"

  "github.com/pkg/errors"
)

var (
  ErrInvalidData = errors.New("invalid data")
  ErrMalformedFrame = errors.New("malformed frame")
)

// Device is a roster entry: a sensor known by address, with a human readable name.
type Device struct {
  name string
  addr net.HardwareAddr
}

func New(addr string, name string) (*Device, error) {
  hwAddr, err := net.ParseMAC(addr)
  if err != nil {
    return nil, errors.Wrapf(ErrInvalidData, "invalid addr %q: %v", addr, err)
  }

  if len(hwAddr) != 6 {
    return nil, errors.Wrapf(ErrInvalidData, "invalid addr %q: want a 6 byte MAC address", addr)
  }

  d := Device{
    addr: hwAddr,
    name: name,
  }

  if d.name == "" {
    d.name = "sensor-" + strings.ReplaceAll(d.MAC(), ":", "")
  }

  return &d, nil
}

func FromSpec(spec DeviceSpec) (*Device, error) {
  return New(spec.Addr(), spec.Name())
}

func (d *Device) Name() string {
  return d.name
}

func (d *Device) Addr() net.HardwareAddr {
  return d.addr
}

// MAC returns the address rendered the same way decoded readings render it.
func (d *Device) MAC() string {
  return CanonicalMAC(d.addr)
}

func (d *Device) String() string {
  return fmt.Sprintf("sensor[name=%q, addr=%v]", d.name, d.MAC())
}

// CanonicalMAC renders an address as lowercase colon-separated hex.
func CanonicalMAC(addr net.HardwareAddr) string {
  return strings.ToLower(addr.String())
}

// ObjectID is the address without separators, used where colons are not welcome (topics, ids).
func ObjectID(mac string) string {
  return strings.ReplaceAll(mac, ":", "")
}

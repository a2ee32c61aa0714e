package ble

import (
  "context"
  "fmt"
  "net"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-ble2mqtt/utils"
  "github.com/rs/zerolog/log"
)

type Advertisement = ble.Advertisement
type ServiceData = ble.ServiceData
type UUID = ble.UUID

type Addr = ble.Addr

type Handle struct {
  dev *linux.Device
  scan scanFunc
}

// scanFunc has the signature of (*linux.Device).Scan.
type scanFunc func(ctx context.Context, allowDup bool, h ble.AdvHandler) error

func UUID16(i uint16) UUID {
  return ble.UUID16(i)
}

// CanonicalUUID returns the UUID bytes in the order they are printed (big endian). go-ble keeps
// UUIDs in their on-air, little endian order.
func CanonicalUUID(u UUID) []byte {
  return utils.Reverse([]byte(u))
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    advertisementsCounter,
    scanRestartsCounter,
  )
}

func Init(deviceId int, flags Flags) (*Handle, error) {
  scanType, filterPolicy := flags.scanParams()

  log.Debug().
    Stringer("ScanType", scanType).
    Stringer("FilterPolicy", filterPolicy).
    Stringer("Flags", flags).
    Int("DeviceID", deviceId).
    Msg("Initializing Bluetooth device")

  dev, err := linux.NewDevice(
    ble.OptDeviceID(deviceId),
    ble.OptScanParams(cmd.LESetScanParameters{
      LEScanType:           uint8(scanType),     // 0x00: passive, 0x01: active
      LEScanInterval:       0x0004,              // 0x0004 - 0x4000; N * 0.625msec
      LEScanWindow:         0x0004,              // 0x0004 - 0x4000; N * 0.625msec
      OwnAddressType:       0x00,                // 0x00: public, 0x01: random
      ScanningFilterPolicy: uint8(filterPolicy), // 0x00: accept all, 0x01: ignore non-allow-listed.
    }),
  )

  if err != nil {
    return nil, fmt.Errorf("failed to init bluetooth device: %w", err)
  }

  ble.SetDefaultDevice(dev)

  return &Handle{
    dev: dev,
    scan: dev.Scan,
  }, nil
}

func (h *Handle) SetAllowListedAddresses(a []net.HardwareAddr) error {
  log.Debug().
    Array("DeviceAddresses", utils.ToZeroLogArray(a)).
    Msg("Allow-listing the requested Bluetooth devices")

  // clear the white list to make sure we're starting from an empty slate.
  var res cmd.LEClearWhiteListRP

  err := h.dev.HCI.Send(&cmd.LEClearWhiteList{}, &res)

  if err != nil {
    return fmt.Errorf("failed to clear allow-list: %w", err)
  }

  if res.Status != 0 {
    return fmt.Errorf("failed to clear allow-list: got status: %v", res.Status)
  }

  for _, addr := range a {
    if len(addr) != 6 {
      return fmt.Errorf("refusing to allow-list non-6 byte device address %q", addr.String())
    }

    var res cmd.LEAddDeviceToWhiteListRP
    var reversed [6]byte

    // flip due to endianness
    copy(reversed[:], utils.Reverse([]byte(addr)))

    err := h.dev.HCI.Send(&cmd.LEAddDeviceToWhiteList{
      AddressType: 0x00, // public
      Address:     reversed,
    }, &res)

    if err != nil {
      return fmt.Errorf("failed to allow-list device %q: %w", addr.String(), err)
    }

    if res.Status != 0 {
      return fmt.Errorf("failed to allow-list device %q: got status: %v", addr.String(), res.Status)
    }
  }

  return nil
}

func (h *Handle) Stop() {
  h.dev.Stop()
}

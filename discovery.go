package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/robertof/go-ble2mqtt/ble"
	"github.com/robertof/go-ble2mqtt/device"
	"github.com/robertof/go-ble2mqtt/device/pvvx"
	"github.com/robertof/go-ble2mqtt/utils"
)

const discoveryDuration = 5 * time.Second

type discoveredSensor struct {
  name string
  rssi int
  reading device.Reading
  frames int
}

// discoverSensor merges a single advertisement into found, keyed by the MAC carried in the frame.
func discoverSensor(found map[string]*discoveredSensor, a ble.Advertisement) {
  for _, sd := range a.ServiceData() {
    if !pvvx.IsSensorFrame(ble.CanonicalUUID(sd.UUID)) {
      continue
    }

    reading, err := pvvx.Decode(sd.Data)

    if err != nil {
      log.Debug().
        Str("Addr", a.Addr().String()).
        Hex("Data", sd.Data).
        Err(err).
        Msg("Ignoring malformed sensor frame")

      continue
    }

    info, ok := found[reading.MAC]
    if !ok {
      info = &discoveredSensor{}
      found[reading.MAC] = info
    }

    if info.name == "" {
      info.name = a.LocalName()
    }

    info.rssi = a.RSSI()
    info.reading = reading
    info.frames++

    log.Debug().
      Str("Addr", a.Addr().String()).
      Str("Name", a.LocalName()).
      Int("RSSI", a.RSSI()).
      Stringer("Reading", reading).
      Msg("Received sensor advertisement")
  }
}

func doDeviceDiscovery(cfg config) {
  log.Info().
    Dur("DurationSec", discoveryDuration).
    Msg("Starting in device discovery mode - collecting sensors...")

  var flags ble.Flags

  if cfg.ActiveScan {
    flags |= ble.FlagScanTypeActive
  }

  handle, err := ble.Init(cfg.BluetoothDeviceId, flags)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  defer handle.Stop()

  ctx := ble.WrapContextWithSigHandler(
    context.WithTimeout(
      context.Background(),
      discoveryDuration,
    ),
  )

  found := make(map[string]*discoveredSensor)

  err = handle.ScanAll(ctx, func(a ble.Advertisement) {
    discoverSensor(found, a)
  })

  if err != nil && !utils.IsContextDone(err) {
    log.Fatal().Err(err).Msg("Failed to initiate scan")
  }

  log.Info().Int("Found", len(found)).Msg("Finished device discovery")

  macs := maps.Keys(found)
  slices.Sort(macs)

  for _, mac := range macs {
    info := found[mac]

    log.Info().
      Str("Addr", mac).
      Str("Name", info.name).
      Int("RSSI", info.rssi).
      Int("Frames", info.frames).
      Stringer("Reading", info.reading).
      Msg("Found sensor - use -device addr=" + mac + " to forward it")
  }
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-ble2mqtt/ble"
	"github.com/robertof/go-ble2mqtt/collector"
	"github.com/robertof/go-ble2mqtt/device"
	"github.com/robertof/go-ble2mqtt/homeassistant"
	"github.com/robertof/go-ble2mqtt/metrics"
	"github.com/robertof/go-ble2mqtt/mqtt"
	"github.com/robertof/go-ble2mqtt/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

const (
	advertisementQueueSize = 64
	shutdownTimeout = 5 * time.Second
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  if cfg.DiscoverDevices {
    doDeviceDiscovery(cfg)
    return
  }

  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Str("Broker", cfg.MQTT.Broker).
    Str("ClientID", cfg.MQTT.ClientID).
    Str("BaseTopic", cfg.MQTT.BaseTopic).
    Array("Devices", utils.ToZeroLogArray(cfg.Devices)).
    Bool("ForwardAll", cfg.ForwardAll).
    Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
    Msg("Starting with the specified configuration")

  if len(cfg.Devices) == 0 && !cfg.ForwardAll {
    log.Warn().Msg("No devices configured: readings from every sensor in range will be forwarded")
  }

  if err := run(cfg); err != nil {
    log.Fatal().Err(err).Msg("Bridge stopped unexpectedly")
  }
}

func run(cfg config) error {
  ctx, cancel := context.WithCancel(context.Background())
  defer cancel()

  ctx = ble.WrapContextWithSigHandler(ctx, cancel)

  client := initMQTT(ctx, cfg)
  defer client.Disconnect()

  bleHandle := initBle(cfg)
  defer bleHandle.Stop()

  gate := collector.NewDedupGate()
  latest := collector.NewLatest()
  latest.MaxAge = cfg.ReadingMaxAge

  pipeline := collector.NewPipeline(client, gate, cfg.AllowList())
  pipeline.PublishTimeout = cfg.PublishTimeout
  pipeline.Latest = latest

  registry := prometheus.NewRegistry()

  ble.RegisterMetrics(registry)
  collector.RegisterMetrics(registry, gate)
  metrics.RegisterCollector(sampleCollector(cfg.Devices, latest), registry)

  g, gctx := errgroup.WithContext(ctx)
  advertisements := make(chan ble.Advertisement, advertisementQueueSize)

  g.Go(func() error {
    return bleHandle.Stream(gctx, advertisements, ble.StreamOptions{
      BackoffFactor: cfg.Backoff,
      MaxBackoff: ble.DefaultMaxBackoff,
      MaxRestarts: cfg.MaxRestarts,
    })
  })

  g.Go(func() error {
    return pipeline.Run(gctx, advertisements)
  })

  if cfg.BindAddress != "" {
    serveMetrics(gctx, g, cfg.BindAddress, registry)
  }

  if err := g.Wait(); err != nil && !utils.IsContextDone(err) {
    return err
  }

  log.Info().Int("TrackedDevices", gate.Len()).Msg("Shutting down")

  return nil
}

func initMQTT(ctx context.Context, cfg config) *mqtt.Client {
  opts := mqtt.Options{
    Broker: cfg.MQTT.Broker,
    ClientID: cfg.MQTT.ClientID,
    Username: cfg.MQTT.Username,
    Password: cfg.MQTT.Password,
    BaseTopic: cfg.MQTT.BaseTopic,
    QoS: byte(cfg.MQTT.QoS),
    Retain: cfg.MQTT.Retain,
  }

  if cfg.HomeAssistant.Enabled {
    if len(cfg.Devices) == 0 {
      log.Warn().Msg("Home Assistant discovery enabled without configured devices, nothing will be announced")
    }

    // retained discovery configs are re-sent on every reconnection in case the broker lost them.
    opts.OnConnect = func(c *mqtt.Client) {
      emitter := homeassistant.NewEmitter(c, cfg.Devices)
      emitter.Prefix = cfg.HomeAssistant.DiscoveryPrefix

      if err := emitter.Emit(c); err != nil {
        log.Error().Err(err).Msg("Failed to publish Home Assistant discovery messages")
        return
      }

      log.Info().
        Int("Devices", len(cfg.Devices)).
        Str("Prefix", emitter.Prefix).
        Msg("Published Home Assistant discovery messages")
    }
  }

  client, err := mqtt.NewClient(opts)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to create MQTT client")
  }

  log.Info().Str("Broker", cfg.MQTT.Broker).Msg("Connecting to MQTT broker")

  if err := client.Connect(ctx); err != nil {
    log.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
  }

  return client
}

func initBle(cfg config) *ble.Handle {
  bleFlags := cfg.BleFlags()
  bleHandle, err := ble.Init(cfg.BluetoothDeviceId, bleFlags)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  if !bleFlags.Has(ble.FlagEnableDeviceAllowList) {
    return bleHandle
  }

  deviceAddresses := make([]net.HardwareAddr, len(cfg.Devices))

  for i, dev := range cfg.Devices {
    deviceAddresses[i] = dev.Addr()
  }

  if err := bleHandle.SetAllowListedAddresses(deviceAddresses); err != nil {
    log.Error().Err(err).Msg("Failed to set device allow list")
  }

  return bleHandle
}

// sampleCollector exposes the latest admitted readings, named after the configured roster.
func sampleCollector(devices []*device.Device, latest *collector.Latest) metrics.CollectFunc {
  names := make(map[string]string, len(devices))

  for _, dev := range devices {
    names[dev.MAC()] = dev.Name()
  }

  return func() []metrics.Sample {
    snapshot := latest.Snapshot()
    macs := maps.Keys(snapshot)
    slices.Sort(macs)

    res := make([]metrics.Sample, 0, len(macs))

    for _, mac := range macs {
      name, ok := names[mac]
      if !ok {
        name = "sensor-" + device.ObjectID(mac)
      }

      res = append(res, metrics.Sample{
        Name: name,
        Reading: snapshot[mac].Reading,
        Time: snapshot[mac].Time,
      })
    }

    return res
  }
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, registry *prometheus.Registry) {
  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  server := &http.Server{
    Addr: addr,
    Handler: mux,
    ReadHeaderTimeout: 10 * time.Second,
  }

  log.Info().
      Str("ListenAddress", addr).
      Msg("Starting Prometheus server")

  g.Go(func() error {
    if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
      return err
    }

    return nil
  })

  g.Go(func() error {
    <-ctx.Done()

    shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
    defer cancel()

    return server.Shutdown(shutdownCtx)
  })
}

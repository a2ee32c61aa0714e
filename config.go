package main

import (
  "errors"
  "flag"
  "fmt"
  "os"
  "time"

  "github.com/google/uuid"
  "github.com/robertof/go-ble2mqtt/ble"
  "github.com/robertof/go-ble2mqtt/collector"
  "github.com/robertof/go-ble2mqtt/device"
  "github.com/robertof/go-ble2mqtt/homeassistant"
  "github.com/robertof/go-ble2mqtt/mqtt"
  "gopkg.in/yaml.v3"
)

type mqttConfig struct {
  Broker string `yaml:"broker"`
  ClientID string `yaml:"client_id"`
  Username string `yaml:"username"`
  Password string `yaml:"password"`
  BaseTopic string `yaml:"base_topic"`
  QoS int `yaml:"-"`
  Retain bool `yaml:"retain"`
}

type homeAssistantConfig struct {
  Enabled bool `yaml:"enabled"`
  DiscoveryPrefix string `yaml:"discovery_prefix"`
}

type deviceConfig struct {
  MAC string `yaml:"mac"`
  Name string `yaml:"name"`
}

type mqttFileConfig struct {
  mqttConfig `yaml:",inline"`
  // nil when the file does not set it, so that `qos: 0` is not mistaken for "unset".
  QoS *int `yaml:"qos"`
}

// fileConfig is the layout of the optional YAML configuration file.
type fileConfig struct {
  MQTT mqttFileConfig `yaml:"mqtt"`
  HomeAssistant homeAssistantConfig `yaml:"homeassistant"`
  Devices []deviceConfig `yaml:"devices"`
  ForwardAll bool `yaml:"forward_all"`
}

type config struct {
  Debug, Trace bool
  ConfigFile string
  BindAddress string
  DiscoverDevices bool
  BluetoothDeviceId int
  ActiveScan bool
  ControllerAllowList bool
  ForwardAll bool
  MaxRestarts int
  Backoff time.Duration
  PublishTimeout time.Duration
  ReadingMaxAge time.Duration
  MQTT mqttConfig
  HomeAssistant homeAssistantConfig
  Devices []*device.Device
}

type boundDeviceList struct {
  device.DeviceSpec
  list *[]*device.Device
}

func (d *boundDeviceList) String() string {
  return ""
}

func (d *boundDeviceList) Set(v string) error {
  dev, err := device.FromSpec(device.NewDeviceSpec(v))
  if err != nil {
    return fmt.Errorf("failed to create device: %w", err)
  }

  *d.list = append(*d.list, dev)

  return nil
}

// AllowList is nil (forward everything) when no roster is configured or -forward-all is set.
func (cfg config) AllowList() device.AllowList {
  if cfg.ForwardAll {
    return nil
  }

  return device.NewAllowList(cfg.Devices)
}

func (cfg config) BleFlags() (flags ble.Flags) {
  if cfg.ActiveScan {
    flags |= ble.FlagScanTypeActive
  }

  if cfg.ControllerAllowList && len(cfg.Devices) > 0 && !cfg.ForwardAll {
    flags |= ble.FlagEnableDeviceAllowList
  }

  return flags
}

func ParseArgs() config {
  cfg, err := parseArgs(flag.CommandLine, os.Args[1:])

  if errors.Is(err, flag.ErrHelp) {
    os.Exit(0)
  }

  if err != nil {
    fmt.Fprintln(os.Stderr, "Error:", err)
    flag.Usage()
    os.Exit(1)
  }

  return cfg
}

func parseArgs(fs *flag.FlagSet, args []string) (cfg config, err error) {
  var flagDevices []*device.Device

  fs.StringVar(&cfg.ConfigFile, "config", "", "Path to a YAML configuration file")
  fs.StringVar(&cfg.BindAddress, "bind", "localhost:9102", "Where the metrics server will bind to (empty to disable)")
  fs.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", 0, "Bluetooth (HCI) device ID")
  fs.BoolVar(&cfg.ActiveScan, "active-scan", false, "Run active rather than passive scans")
  fs.BoolVar(&cfg.ControllerAllowList, "controller-allow-list", false,
    "Let the Bluetooth controller drop advertisements from devices not in the roster")
  fs.BoolVar(&cfg.ForwardAll, "forward-all", false, "Forward readings from every sensor, not only the configured ones")
  fs.BoolVar(&cfg.DiscoverDevices, "discover", false, "Discover sensors broadcasting readings and quit")
  fs.IntVar(&cfg.MaxRestarts, "max-restarts", -1, "Max number of scan restarts after failures (negative for unlimited)")
  fs.DurationVar(&cfg.Backoff, "backoff", ble.DefaultBackoffFactor, "Exponential backoff factor for scan restarts")
  fs.DurationVar(&cfg.PublishTimeout, "publish-timeout", collector.DefaultPublishTimeout,
    "How long to wait for the broker to acknowledge a reading")
  fs.DurationVar(&cfg.ReadingMaxAge, "metrics-max-age", 15 * time.Minute,
    "Stop exporting metrics for sensors silent for longer than this (0 to disable)")
  fs.StringVar(&cfg.MQTT.Broker, "mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
  fs.StringVar(&cfg.MQTT.ClientID, "mqtt-client-id", "", "MQTT client ID (random if empty)")
  fs.StringVar(&cfg.MQTT.Username, "mqtt-username", "", "MQTT username")
  fs.StringVar(&cfg.MQTT.Password, "mqtt-password", "", "MQTT password")
  fs.StringVar(&cfg.MQTT.BaseTopic, "mqtt-topic", mqtt.DefaultBaseTopic, "Base topic readings are published under")
  fs.IntVar(&cfg.MQTT.QoS, "mqtt-qos", 1, "QoS of published readings")
  fs.BoolVar(&cfg.MQTT.Retain, "mqtt-retain", false, "Publish readings as retained messages")
  fs.BoolVar(&cfg.HomeAssistant.Enabled, "homeassistant", false, "Publish Home Assistant discovery messages for the roster")
  fs.StringVar(&cfg.HomeAssistant.DiscoveryPrefix, "homeassistant-prefix", homeassistant.DefaultPrefix,
    "Home Assistant discovery topic prefix")
  fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  fs.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  deviceList := boundDeviceList{list: &flagDevices}
  fs.Var(&deviceList, "device",
    "Device spec for a sensor in the form of `key=value,key=value`. Can be repeated.\n" + deviceList.Help())

  if err := fs.Parse(args); err != nil {
    return cfg, err
  }

  if cfg.ConfigFile != "" {
    if err := cfg.applyFile(fs, cfg.ConfigFile); err != nil {
      return cfg, err
    }
  }

  cfg.Devices = mergeDevices(cfg.Devices, flagDevices)

  if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
    return cfg, fmt.Errorf("invalid MQTT QoS %d (must be 0, 1 or 2)", cfg.MQTT.QoS)
  }

  if cfg.MQTT.ClientID == "" {
    cfg.MQTT.ClientID = "ble2mqtt-" + uuid.NewString()[:8]
  }

  return cfg, nil
}

// applyFile loads path and applies every value not explicitly set on the command line.
func (cfg *config) applyFile(fs *flag.FlagSet, path string) error {
  data, err := os.ReadFile(path)
  if err != nil {
    return fmt.Errorf("failed to read config file: %w", err)
  }

  var fc fileConfig

  if err := yaml.Unmarshal(data, &fc); err != nil {
    return fmt.Errorf("failed to parse config file %s: %w", path, err)
  }

  set := make(map[string]bool)
  fs.Visit(func(f *flag.Flag) {
    set[f.Name] = true
  })

  apply := func(name string, fn func()) {
    if !set[name] {
      fn()
    }
  }

  if fc.MQTT.Broker != "" {
    apply("mqtt-broker", func() { cfg.MQTT.Broker = fc.MQTT.Broker })
  }

  if fc.MQTT.ClientID != "" {
    apply("mqtt-client-id", func() { cfg.MQTT.ClientID = fc.MQTT.ClientID })
  }

  if fc.MQTT.Username != "" {
    apply("mqtt-username", func() { cfg.MQTT.Username = fc.MQTT.Username })
  }

  if fc.MQTT.Password != "" {
    apply("mqtt-password", func() { cfg.MQTT.Password = fc.MQTT.Password })
  }

  if fc.MQTT.BaseTopic != "" {
    apply("mqtt-topic", func() { cfg.MQTT.BaseTopic = fc.MQTT.BaseTopic })
  }

  if fc.MQTT.QoS != nil {
    apply("mqtt-qos", func() { cfg.MQTT.QoS = *fc.MQTT.QoS })
  }

  if fc.MQTT.Retain {
    apply("mqtt-retain", func() { cfg.MQTT.Retain = true })
  }

  if fc.HomeAssistant.Enabled {
    apply("homeassistant", func() { cfg.HomeAssistant.Enabled = true })
  }

  if fc.HomeAssistant.DiscoveryPrefix != "" {
    apply("homeassistant-prefix", func() { cfg.HomeAssistant.DiscoveryPrefix = fc.HomeAssistant.DiscoveryPrefix })
  }

  if fc.ForwardAll {
    apply("forward-all", func() { cfg.ForwardAll = true })
  }

  for i, d := range fc.Devices {
    dev, err := device.New(d.MAC, d.Name)
    if err != nil {
      return fmt.Errorf("config file %s: device #%d: %w", path, i + 1, err)
    }

    cfg.Devices = append(cfg.Devices, dev)
  }

  return nil
}

// mergeDevices concatenates the rosters, keeping a single entry per MAC. Later entries win over
// earlier ones but keep the position of the first occurrence.
func mergeDevices(rosters ...[]*device.Device) []*device.Device {
  var res []*device.Device
  index := make(map[string]int)

  for _, roster := range rosters {
    for _, dev := range roster {
      if i, ok := index[dev.MAC()]; ok {
        res[i] = dev
        continue
      }

      index[dev.MAC()] = len(res)
      res = append(res, dev)
    }
  }

  return res
}

package metrics_test

import (
  "strings"
  "testing"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/testutil"
  "github.com/robertof/go-ble2mqtt/device"
  "github.com/robertof/go-ble2mqtt/metrics"
)

func TestCollector(t *testing.T) {
  reg := prometheus.NewRegistry()

  metrics.RegisterCollector(func() []metrics.Sample {
    return []metrics.Sample{
      {
        Name: "Kitchen",
        Reading: device.Reading{
          MAC:            "a4:c1:38:0b:5e:ed",
          Temperature:    21.5,
          Humidity:       50,
          BatteryVoltage: 3,
          BatteryLevel:   75,
          Counter:        12,
        },
        Time: time.Unix(1700000000, 0),
      },
    }
  }, reg)

  if n, err := testutil.GatherAndCount(reg); err != nil || n != 5 {
    t.Fatalf("GatherAndCount(): got %d metrics (err: %v), wanted 5", n, err)
  }

  expected := `
# HELP sensor_humidity_ratio Relative humidity reported by the sensor.
# TYPE sensor_humidity_ratio gauge
sensor_humidity_ratio{mac="a4:c1:38:0b:5e:ed",name="Kitchen"} 0.5 1700000000000
# HELP sensor_battery_ratio Battery percentage reported by the sensor.
# TYPE sensor_battery_ratio gauge
sensor_battery_ratio{mac="a4:c1:38:0b:5e:ed",name="Kitchen"} 0.75 1700000000000
`

  err := testutil.GatherAndCompare(
    reg,
    strings.NewReader(expected),
    "sensor_humidity_ratio",
    "sensor_battery_ratio",
  )

  if err != nil {
    t.Fatalf("GatherAndCompare(): %v", err)
  }
}

func TestCollector_Empty(t *testing.T) {
  reg := prometheus.NewRegistry()

  metrics.RegisterCollector(func() []metrics.Sample { return nil }, reg)

  if n, err := testutil.GatherAndCount(reg); err != nil || n != 0 {
    t.Fatalf("GatherAndCount(): got %d metrics (err: %v), wanted 0", n, err)
  }
}

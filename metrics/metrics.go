package metrics

import (
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-ble2mqtt/device"
)

var (
  labels = []string{"name", "mac"}

  descTemperature = prometheus.NewDesc(
    "sensor_temperature_celsius",
    "Temperature reported by the sensor in Celsius.",
    labels,
    nil,
  )

  descHumidity = prometheus.NewDesc(
    "sensor_humidity_ratio",
    "Relative humidity reported by the sensor.",
    labels,
    nil,
  )

  descBatteryVoltage = prometheus.NewDesc(
    "sensor_battery_volts",
    "Battery voltage reported by the sensor.",
    labels,
    nil,
  )

  descBattery = prometheus.NewDesc(
    "sensor_battery_ratio",
    "Battery percentage reported by the sensor.",
    labels,
    nil,
  )

  descCounter = prometheus.NewDesc(
    "sensor_measurement_counter",
    "Measurement counter of the last reading (wraps at 255).",
    labels,
    nil,
  )
)

// Sample is the latest reading of a device, as seen by the collector.
type Sample struct {
  Name string
  Reading device.Reading
  Time time.Time
}

type CollectFunc func() []Sample

type collector struct {
  CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  for _, s := range c.CollectFunc() {
    values := []struct {
      desc *prometheus.Desc
      value float64
    }{
      {descTemperature, float64(s.Reading.Temperature)},
      {descHumidity, float64(s.Reading.Humidity) / 100},
      {descBatteryVoltage, float64(s.Reading.BatteryVoltage)},
      {descBattery, float64(s.Reading.BatteryLevel) / 100},
      {descCounter, float64(s.Reading.Counter)},
    }

    for _, v := range values {
      m := prometheus.MustNewConstMetric(
        v.desc,
        prometheus.GaugeValue,
        v.value,
        s.Name,
        s.Reading.MAC,
      )

      ch <- prometheus.NewMetricWithTimestamp(s.Time, m)
    }
  }
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}

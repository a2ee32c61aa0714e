package collector

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ble2mqtt_frames_total",
		Help: "Service data entries carrying a sensor frame.",
	})
	malformedFramesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ble2mqtt_frames_malformed_total",
		Help: "Sensor frames that could not be decoded.",
	})
	filteredReadingsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ble2mqtt_readings_filtered_total",
		Help: "Readings dropped because their address is not allow-listed.",
	})
	duplicateReadingsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ble2mqtt_readings_duplicate_total",
		Help: "Readings suppressed because their measurement was already forwarded.",
	})
	publishedReadingsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ble2mqtt_readings_published_total",
		Help: "Readings handed to the publisher, by outcome.",
	}, []string{"result"})
)

func RegisterMetrics(reg prometheus.Registerer, gate *DedupGate) {
	reg.MustRegister(
		framesCounter,
		malformedFramesCounter,
		filteredReadingsCounter,
		duplicateReadingsCounter,
		publishedReadingsCounter,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ble2mqtt_tracked_devices",
			Help: "Devices tracked by the deduplication gate.",
		}, func() float64 {
			return float64(gate.Len())
		}),
	)
}

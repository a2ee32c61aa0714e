// Package homeassistant builds the MQTT discovery messages that make Home Assistant register
// every sensor of the roster, without manual configuration.
//
// Each device gets four sensor entities (temperature, humidity, battery voltage, battery level)
// grouped under a single device page. All entities read the same JSON state document and pick
// their field through a value template.
package homeassistant

import (
	"errors"
	"fmt"

	"github.com/robertof/go-ble2mqtt/device"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPrefix       = "homeassistant"
	DefaultManufacturer = "Xiaomi"
	DefaultModel        = "LYWSD03MMC (pvvx firmware)"
)

// DeviceInfo holds the device registry fields shared by all the entities of a sensor.
type DeviceInfo struct {
	Identifiers  []string    `json:"identifiers"`
	Connections  [][2]string `json:"connections,omitempty"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model,omitempty"`
}

// SensorConfig is the JSON payload of an MQTT sensor discovery message.
type SensorConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	Device            DeviceInfo `json:"device"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	ValueTemplate     string     `json:"value_template"`
	EntityCategory    string     `json:"entity_category,omitempty"`
}

type Kind string

const (
	KindTemperature    Kind = "temperature"
	KindHumidity       Kind = "humidity"
	KindBatteryVoltage Kind = "battery_voltage"
	KindBatteryLevel   Kind = "battery"
)

type kindSpec struct {
	kind           Kind
	label          string
	unit           string
	deviceClass    string
	field          string
	entityCategory string
}

// field must match the JSON tags of device.Reading.
var kinds = []kindSpec{
	{KindTemperature, "Temperature", "°C", "temperature", "temperature", ""},
	{KindHumidity, "Humidity", "%", "humidity", "humidity", ""},
	{KindBatteryVoltage, "Battery Voltage", "V", "voltage", "battery_voltage", "diagnostic"},
	{KindBatteryLevel, "Battery", "%", "battery", "battery_level", "diagnostic"},
}

// Topics resolves where the bridge publishes state and availability.
type Topics interface {
	StateTopic(mac string) string
	AvailabilityTopic() string
}

type Publisher interface {
	PublishJSON(topic string, v any, retain bool) error
}

// Descriptor is a discovery message along with the topic it belongs to.
type Descriptor struct {
	Kind   Kind
	Topic  string
	Config SensorConfig
}

type Emitter struct {
	Prefix       string
	Manufacturer string
	Model        string
	Topics       Topics
	Devices      []*device.Device
}

func NewEmitter(topics Topics, devices []*device.Device) *Emitter {
	return &Emitter{
		Prefix:       DefaultPrefix,
		Manufacturer: DefaultManufacturer,
		Model:        DefaultModel,
		Topics:       topics,
		Devices:      devices,
	}
}

// Topic returns the discovery topic of an entity.
func Topic(prefix string, mac string, kind Kind) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", prefix, device.ObjectID(mac), kind)
}

func (e *Emitter) deviceInfo(dev *device.Device) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{"ble2mqtt_" + device.ObjectID(dev.MAC())},
		Connections:  [][2]string{{"mac", dev.MAC()}},
		Name:         dev.Name(),
		Manufacturer: e.Manufacturer,
		Model:        e.Model,
	}
}

// Descriptors returns the four discovery messages of dev.
func (e *Emitter) Descriptors(dev *device.Device) []Descriptor {
	mac := dev.MAC()
	info := e.deviceInfo(dev)
	out := make([]Descriptor, 0, len(kinds))

	for _, k := range kinds {
		out = append(out, Descriptor{
			Kind:  k.kind,
			Topic: Topic(e.Prefix, mac, k.kind),
			Config: SensorConfig{
				Name:              dev.Name() + " " + k.label,
				UniqueID:          device.ObjectID(mac) + "_" + string(k.kind),
				StateTopic:        e.Topics.StateTopic(mac),
				AvailabilityTopic: e.Topics.AvailabilityTopic(),
				Device:            info,
				UnitOfMeasurement: k.unit,
				DeviceClass:       k.deviceClass,
				StateClass:        "measurement",
				ValueTemplate:     "{{ value_json." + k.field + " }}",
				EntityCategory:    k.entityCategory,
			},
		})
	}

	return out
}

// Emit publishes the retained discovery messages of every device. A failed message does not
// prevent the others from being sent.
func (e *Emitter) Emit(p Publisher) error {
	var errs []error

	for _, dev := range e.Devices {
		for _, d := range e.Descriptors(dev) {
			if err := p.PublishJSON(d.Topic, d.Config, true); err != nil {
				log.Warn().
					Err(err).
					Stringer("Device", dev).
					Str("Topic", d.Topic).
					Msg("homeassistant: failed to publish discovery message")

				errs = append(errs, err)
				continue
			}

			log.Debug().
				Stringer("Device", dev).
				Str("Topic", d.Topic).
				Msg("homeassistant: published discovery message")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d discovery messages failed: %w", len(errs), errors.Join(errs...))
	}

	log.Info().Int("Devices", len(e.Devices)).Msg("homeassistant: discovery messages published")

	return nil
}

package collector_test

import (
	"sync"

	"github.com/robertof/go-ble2mqtt/ble"
	"github.com/robertof/go-ble2mqtt/collector"
	"github.com/robertof/go-ble2mqtt/device"
)

type fakeAddr string

func (a fakeAddr) String() string { return string(a) }

type FakeAdvertisement struct {
	serviceData []ble.ServiceData
	addr        ble.Addr
}

func (f FakeAdvertisement) LocalName() string              { return "" }
func (f FakeAdvertisement) ManufacturerData() []byte       { return nil }
func (f FakeAdvertisement) ServiceData() []ble.ServiceData { return f.serviceData }
func (f FakeAdvertisement) Services() []ble.UUID           { return nil }
func (f FakeAdvertisement) OverflowService() []ble.UUID    { return nil }
func (f FakeAdvertisement) TxPowerLevel() int              { return 0 }
func (f FakeAdvertisement) Connectable() bool              { return false }
func (f FakeAdvertisement) SolicitedService() []ble.UUID   { return nil }
func (f FakeAdvertisement) RSSI() int                      { return -70 }
func (f FakeAdvertisement) Addr() ble.Addr                 { return f.addr }

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	reading device.Reading
}

type fakePublisher struct {
	mu        sync.Mutex
	published []published

	// token returned by Publish; a completed, successful token when nil.
	token collector.PublishToken
}

func (p *fakePublisher) Publish(topic string, r device.Reading) collector.PublishToken {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.published = append(p.published, published{topic, r})

	if p.token != nil {
		return p.token
	}

	return completedToken(nil)
}

func (p *fakePublisher) StateTopic(mac string) string {
	return "test/" + device.ObjectID(mac)
}

func (p *fakePublisher) Published() []published {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]published(nil), p.published...)
}

// frame builds a sensor frame for mac (canonical rendering) with the given counter.
func frame(mac [6]byte, counter uint8) []byte {
	return []byte{
		mac[5], mac[4], mac[3], mac[2], mac[1], mac[0],
		0xd2, 0x09, // 25.14 °C
		0x61, 0x15, // 54.73 %
		0xb8, 0x0b, // 3000 mV
		0x64, // 100 %
		counter,
		0x00,
	}
}

func sensorData(data []byte) ble.ServiceData {
	return ble.ServiceData{
		UUID: ble.UUID16(0x181a),
		Data: data,
	}
}

func advertisement(entries ...ble.ServiceData) FakeAdvertisement {
	return FakeAdvertisement{
		serviceData: entries,
		addr:        fakeAddr("aa:bb:cc:dd:ee:ff"),
	}
}

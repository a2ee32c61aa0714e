package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robertof/go-ble2mqtt/ble"
	"github.com/robertof/go-ble2mqtt/collector/model"
	"github.com/robertof/go-ble2mqtt/device"
	"github.com/robertof/go-ble2mqtt/device/pvvx"
	"github.com/rs/zerolog/log"
)

const DefaultPublishTimeout = 10 * time.Second

var ErrPublishTimeout = errors.New("publish timed out")

// PublishToken tracks a publish in flight. Done is closed once the outcome is known.
type PublishToken interface {
	Done() <-chan struct{}
	Error() error
}

type Publisher interface {
	// Publish hands r off without waiting for the delivery to complete.
	Publish(topic string, r device.Reading) PublishToken
	StateTopic(mac string) string
}

// Pipeline turns advertisements into published readings: sensor frames are recognized, decoded,
// checked against the allow-list and deduplicated before reaching the publisher.
type Pipeline struct {
	// How long to wait for a publish acknowledgement before reporting it as failed.
	PublishTimeout time.Duration
	// Optional, receives every admitted reading.
	Latest *Latest
	// Optional, receives the outcome of every publish.
	OnPublished func(model.Result)

	publisher Publisher
	gate      *DedupGate
	allowList device.AllowList

	pending sync.WaitGroup
}

func NewPipeline(publisher Publisher, gate *DedupGate, allowList device.AllowList) *Pipeline {
	return &Pipeline{
		PublishTimeout: DefaultPublishTimeout,
		publisher:      publisher,
		gate:           gate,
		allowList:      allowList,
	}
}

// Run consumes advertisements until in is closed or ctx is canceled, then waits for the
// publishes still in flight.
func (p *Pipeline) Run(ctx context.Context, in <-chan ble.Advertisement) error {
	defer p.pending.Wait()

	log.Info().
		Int("AllowListed", p.allowList.Len()).
		Dur("PublishTimeoutSec", p.PublishTimeout).
		Msg("Starting pipeline")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-in:
			if !ok {
				return nil
			}

			p.HandleAdvertisement(a)
		}
	}
}

// HandleAdvertisement processes every service data entry of a and returns how many readings
// were forwarded. A bad entry never prevents the others from being processed.
func (p *Pipeline) HandleAdvertisement(a ble.Advertisement) (forwarded int) {
	for _, sd := range a.ServiceData() {
		uuid := ble.CanonicalUUID(sd.UUID)

		if !pvvx.IsSensorFrame(uuid) {
			log.Trace().
				Hex("UUID", uuid).
				Msg("pipeline: ignoring unrelated service data")
			continue
		}

		framesCounter.Inc()

		reading, err := pvvx.Decode(sd.Data)

		if err != nil {
			malformedFramesCounter.Inc()

			log.Warn().
				Err(err).
				Str("Addr", addrOf(a)).
				Hex("ServiceData", sd.Data).
				Msg("Failed to decode sensor frame")
			continue
		}

		if !p.allowList.IsAllowed(reading.MAC) {
			filteredReadingsCounter.Inc()

			log.Debug().
				Str("MAC", reading.MAC).
				Msg("Ignoring reading from device not in allow-list")
			continue
		}

		if !p.gate.Admit(reading) {
			duplicateReadingsCounter.Inc()

			log.Debug().
				Str("MAC", reading.MAC).
				Uint8("Counter", reading.Counter).
				Msg("Repeated measurement")
			continue
		}

		log.Trace().
			Stringer("Reading", reading).
			Int("RSSI", a.RSSI()).
			Msg("pipeline: admitted reading")

		if p.Latest != nil {
			p.Latest.Update(reading)
		}

		p.publish(reading)
		forwarded += 1
	}

	return forwarded
}

func (p *Pipeline) publish(r device.Reading) {
	topic := p.publisher.StateTopic(r.MAC)
	token := p.publisher.Publish(topic, r)

	p.pending.Add(1)

	// do not hold the next advertisement behind the broker acknowledgement.
	go func() {
		defer p.pending.Done()

		res := model.Result{
			Topic:   topic,
			Reading: r,
		}

		timeout := p.PublishTimeout

		if timeout <= 0 {
			timeout = DefaultPublishTimeout
		}

		select {
		case <-token.Done():
			res.Error = token.Error()
		case <-time.After(timeout):
			res.Error = ErrPublishTimeout
		}

		// the gate is not rolled back: a failed reading stays seen.
		if res.Error != nil {
			publishedReadingsCounter.WithLabelValues("failure").Inc()

			log.Error().
				Stringer("Result", res).
				Str("Topic", topic).
				Str("MAC", r.MAC).
				Uint8("Counter", r.Counter).
				Msg("Failed to publish reading")
		} else {
			publishedReadingsCounter.WithLabelValues("success").Inc()

			log.Info().
				Str("Topic", topic).
				Stringer("Reading", r).
				Msg("Published reading")
		}

		if p.OnPublished != nil {
			p.OnPublished(res)
		}
	}()
}

func addrOf(a ble.Advertisement) string {
	if a.Addr() == nil {
		return ""
	}

	return a.Addr().String()
}

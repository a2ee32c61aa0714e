package collector

import (
	"sync"
	"time"

	"github.com/robertof/go-ble2mqtt/device"
)

// Sample is a reading along with the time it was admitted.
type Sample struct {
	device.Reading
	Time time.Time
}

// Latest keeps the most recent admitted reading of every device.
type Latest struct {
	// Readings older than MaxAge are left out of snapshots, so that a sensor going silent does
	// not keep being reported with stale values. Zero disables the check.
	MaxAge time.Duration

	mu      sync.Mutex
	samples map[string]Sample

	now func() time.Time
}

func NewLatest() *Latest {
	return &Latest{
		samples: make(map[string]Sample),
		now:     time.Now,
	}
}

func (s *Latest) Update(r device.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples[r.MAC] = Sample{
		Reading: r,
		Time:    s.now(),
	}
}

// Snapshot returns a copy of the current samples, keyed by MAC address.
func (s *Latest) Snapshot() map[string]Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make(map[string]Sample, len(s.samples))

	for mac, sample := range s.samples {
		if s.MaxAge > 0 && now.Sub(sample.Time) > s.MaxAge {
			continue
		}

		out[mac] = sample
	}

	return out
}

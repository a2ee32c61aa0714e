package collector

import (
	"sync"

	"github.com/robertof/go-ble2mqtt/device"
)

// DedupGate tracks the last measurement counter seen for every device. Sensors repeat the same
// advertisement many times before taking a new measurement; only the first copy is admitted.
//
// Entries are never evicted, so memory grows with the number of distinct addresses seen during
// the lifetime of the process.
type DedupGate struct {
	mu       sync.Mutex
	counters map[string]uint8
}

func NewDedupGate() *DedupGate {
	return &DedupGate{
		counters: make(map[string]uint8),
	}
}

// Admit reports whether r carries a measurement not seen before. Any change of the counter is a
// new measurement, wraparounds included.
func (g *DedupGate) Admit(r device.Reading) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.counters[r.MAC]; ok && last == r.Counter {
		return false
	}

	g.counters[r.MAC] = r.Counter

	return true
}

// Len returns the number of devices tracked.
func (g *DedupGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.counters)
}

package ble

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBackoffFactor = 500 * time.Millisecond
	DefaultMaxBackoff    = 30 * time.Second
)

var (
	advertisementsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ble2mqtt_ble_advertisements_total",
		Help: "Advertisements received from the Bluetooth controller.",
	})
	scanRestartsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ble2mqtt_ble_scan_restarts_total",
		Help: "Scans restarted after the controller reported an error.",
	})
)

type StreamOptions struct {
	// Exponential backoff factor between scan restarts.
	BackoffFactor time.Duration
	// Upper bound for the backoff between scan restarts.
	MaxBackoff time.Duration
	// Number of restarts allowed before giving up. Negative means unlimited.
	MaxRestarts int
}

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
	return ble.WithSigHandler(ctx, cancel)
}

// Perform an active or passive scan and return every advertisement found.
func (h *Handle) ScanAll(ctx context.Context, onDevice func(Advertisement)) error {
	err := h.scan(ctx, true, onDevice)

	if err != nil {
		return fmt.Errorf("failed to initiate scan: %w", err)
	}

	return nil
}

// Stream scans until ctx is canceled, pushing every advertisement into out. Failed scans are
// restarted with an exponential backoff. out is never closed: the BLE lib could deliver an
// advertisement even after `Scan()` returns.
func (h *Handle) Stream(ctx context.Context, out chan<- Advertisement, opts StreamOptions) error {
	if opts.BackoffFactor <= 0 {
		opts.BackoffFactor = DefaultBackoffFactor
	}

	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}

	attempt := 0

	for {
		var received atomic.Bool

		// duplicates must be allowed: the controller would otherwise swallow every advertisement
		// from a sensor after the first one, including those carrying new measurements.
		err := h.scan(ctx, true, func(a Advertisement) {
			select {
			case <-ctx.Done():
				return
			default:
			}

			received.Store(true)
			advertisementsCounter.Inc()

			select {
			case <-ctx.Done():
			case out <- a:
			}
		})

		if ctx.Err() != nil {
			log.Debug().Err(ctx.Err()).Msg("ble: stream stopped")
			return ctx.Err()
		}

		if err == nil {
			err = errors.New("scan ended unexpectedly")
		}

		if received.Load() {
			attempt = 0
		}

		if opts.MaxRestarts >= 0 && attempt >= opts.MaxRestarts {
			return fmt.Errorf("giving up after %d scan restarts: %w", attempt, err)
		}

		backoff := opts.backoff(attempt)
		attempt += 1
		scanRestartsCounter.Inc()

		log.Warn().
			Err(err).
			Int("Attempt", attempt).
			Dur("Backoff", backoff).
			Msg("ble: scan failed, restarting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// backoff returns the delay before the restart following the given number of failed attempts.
func (opts StreamOptions) backoff(attempt int) time.Duration {
	if attempt > 62 {
		return opts.MaxBackoff
	}

	backoff := opts.BackoffFactor << attempt

	// overflow
	if backoff <= 0 || backoff > opts.MaxBackoff || backoff>>attempt != opts.BackoffFactor {
		return opts.MaxBackoff
	}

	return backoff
}

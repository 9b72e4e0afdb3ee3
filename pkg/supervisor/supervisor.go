// Package supervisor keeps every configured sensor connected. Each sensor gets its own retry loop
// that scans for it, runs a session until the session ends, and waits a random delay before trying
// again. Loops share nothing but the Bluetooth adapter.
package supervisor

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/imu-telemetry/imu-logger/internal/log"
	"github.com/imu-telemetry/imu-logger/pkg/connector/ble"
	"github.com/imu-telemetry/imu-logger/pkg/protocol"
	"github.com/imu-telemetry/imu-logger/pkg/session"
)

const (
	DefaultScanTimeout = 10 * time.Second
	DefaultRetryJitter = 7 * time.Second
)

// Options configure a Supervisor.
type Options struct {
	// ScanTimeout bounds each search for a sensor.
	ScanTimeout time.Duration
	// RetryJitter is the upper bound of the random delay between attempts.
	RetryJitter time.Duration
	Session     session.Config
	// Observe, if set, receives every reading decoded from any sensor.
	Observe func(session.Identity, protocol.Reading)
}

// Supervisor runs one independent retry loop per sensor.
type Supervisor struct {
	adapter ble.Adapter
	options Options
}

func New(adapter ble.Adapter, options Options) *Supervisor {
	if options.ScanTimeout <= 0 {
		options.ScanTimeout = DefaultScanTimeout
	}
	if options.RetryJitter < 0 {
		options.RetryJitter = 0
	}
	return &Supervisor{adapter: adapter, options: options}
}

// Run supervises every identity concurrently and returns once ctx is done and all loops have
// finished their teardown.
func (s *Supervisor) Run(ctx context.Context, identities []session.Identity) {
	var wg sync.WaitGroup
	for _, identity := range identities {
		wg.Add(1)
		go func(identity session.Identity) {
			defer wg.Done()
			s.Supervise(ctx, identity)
		}(identity)
	}
	wg.Wait()
}

// Supervise retries Attempt for a single sensor until ctx is done.
func (s *Supervisor) Supervise(ctx context.Context, identity session.Identity) {
	log.Info("[%s] Supervising", identity)
	for {
		err := s.Attempt(ctx, identity)
		if ctx.Err() != nil {
			log.Info("[%s] Stopped", identity)
			return
		}
		s.report(identity, err)

		delay := s.jitter()
		log.Debug("[%s] Retrying in %s", identity, delay)
		if !sleep(ctx, delay) {
			log.Info("[%s] Stopped", identity)
			return
		}
	}
}

// Attempt scans for the sensor once and, if it is found, runs a session with it to completion.
func (s *Supervisor) Attempt(ctx context.Context, identity session.Identity) error {
	beacon, err := ble.Scan(ctx, s.adapter, identity.Address, s.options.ScanTimeout)
	if err != nil {
		return err
	}
	log.Info("[%s] Found device (RSSI %d)", identity, beacon.RSSI)

	var options []session.Option
	if s.options.Observe != nil {
		observe := s.options.Observe
		options = append(options, session.WithReadingObserver(func(reading protocol.Reading) {
			observe(identity, reading)
		}))
	}
	sess, err := session.New(identity, beacon, s.adapter, s.options.Session, options...)
	if err != nil {
		return err
	}
	return sess.Run(ctx)
}

func (s *Supervisor) report(identity session.Identity, err error) {
	switch {
	case err == nil:
		log.Info("[%s] Session ended", identity)
	case errors.Is(err, protocol.ErrDeviceNotFound):
		log.Info("[%s] Device not found", identity)
	case errors.Is(err, protocol.ErrDisconnected):
		log.Warning("[%s] Device disconnected", identity)
	case protocol.Temporary(err):
		log.Warning("[%s] Session failed: %s", identity, err)
	default:
		log.Error("[%s] Session failed: %s", identity, err)
	}
}

// jitter returns a delay drawn uniformly from [0, RetryJitter].
func (s *Supervisor) jitter() time.Duration {
	return rand.N(s.options.RetryJitter + 1)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goble "github.com/go-ble/ble"

	"github.com/imu-telemetry/imu-logger/internal/log"
	"github.com/imu-telemetry/imu-logger/pkg/connector/ble"
	"github.com/imu-telemetry/imu-logger/pkg/protocol"
)

var (
	ErrAdapterInvalidID = protocol.NewError("the bluetooth adapter ID is invalid", false)
	ErrAdapterClosed    = protocol.NewError("the bluetooth adapter is closed", false)
	errScanStopped      = protocol.NewError("bluetooth scan stopped unexpectedly", true)
)

// NewAdapter opens the host controller identified by id ("" selects the default controller).
func NewAdapter(id string) (ble.Adapter, error) {
	device, err := newDevice(id)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to enable device: %w", err)
	}
	return newAdapter(device), nil
}

func newAdapter(device goble.Device) *adapter {
	return &adapter{
		device:  device,
		waiters: make(map[*waiter]struct{}),
	}
}

type waiter struct {
	address string
	found   chan *ble.Beacon
}

type scan struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// adapter shares one controller among several supervisors. A controller runs a single scan at a
// time, so concurrent ScanAddress calls register as waiters on one scan that keeps running while
// anyone is waiting.
type adapter struct {
	device goble.Device

	lock    sync.Mutex
	waiters map[*waiter]struct{}
	current *scan
}

func (s *adapter) ScanAddress(ctx context.Context, address string) (*ble.Beacon, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	w := &waiter{address: strings.ToLower(address), found: make(chan *ble.Beacon, 1)}
	s.lock.Lock()
	s.waiters[w] = struct{}{}
	s.lock.Unlock()
	defer s.removeWaiter(w)

	log.Debug("Scanning for %s...", address)
	for {
		current := s.ensureScan()
		select {
		case beacon := <-w.found:
			return beacon, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-current.done:
			if current.err != nil {
				return nil, current.err
			}
			// The scan was stopped while this waiter was registering; start another.
		}
	}
}

func (s *adapter) ensureScan() *scan {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.current != nil {
		return s.current
	}
	scanCtx, cancel := context.WithCancel(context.Background())
	sc := &scan{cancel: cancel, done: make(chan struct{})}
	if s.device == nil {
		cancel()
		sc.err = ErrAdapterClosed
		close(sc.done)
		return sc
	}
	s.current = sc
	go s.runScan(scanCtx, s.device, sc)
	return sc
}

func (s *adapter) runScan(ctx context.Context, device goble.Device, sc *scan) {
	// Duplicates are needed: a waiter that registers late must still see a sensor that has
	// already advertised during this scan.
	err := device.Scan(ctx, true, s.onAdvertisement)
	if ctx.Err() != nil {
		err = nil
	} else if err == nil {
		err = errScanStopped
	}
	if err != nil {
		log.Warning("ble: scan failed: %s", err)
	}

	s.lock.Lock()
	if s.current == sc {
		s.current = nil
	}
	s.lock.Unlock()
	sc.err = err
	close(sc.done)
}

func (s *adapter) removeWaiter(w *waiter) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.waiters, w)
	if len(s.waiters) == 0 && s.current != nil {
		s.current.cancel()
	}
}

func (s *adapter) onAdvertisement(a goble.Advertisement) {
	address := strings.ToLower(a.Addr().String())
	s.lock.Lock()
	defer s.lock.Unlock()
	for w := range s.waiters {
		if w.address != address {
			continue
		}
		select {
		case w.found <- advertisementToBeacon(a):
		default:
		}
	}
}

func (s *adapter) Connect(ctx context.Context, beacon *ble.Beacon) (ble.Device, error) {
	s.lock.Lock()
	device := s.device
	s.lock.Unlock()
	if device == nil {
		return nil, ErrAdapterClosed
	}

	log.Debug("Dialing %s...", beacon.Address)
	client, err := device.Dial(ctx, goble.NewAddr(beacon.Address))
	if err != nil {
		return nil, &protocol.TransportError{Op: "connect", Address: beacon.Address, Err: err}
	}
	return newConnectedDevice(beacon.Address, client), nil
}

func (s *adapter) Close() error {
	s.lock.Lock()
	device := s.device
	s.device = nil
	if s.current != nil {
		s.current.cancel()
	}
	s.lock.Unlock()

	if device == nil {
		return nil
	}
	return device.Stop()
}

func advertisementToBeacon(a goble.Advertisement) *ble.Beacon {
	return &ble.Beacon{
		Address:     a.Addr().String(),
		LocalName:   a.LocalName(),
		RSSI:        int16(a.RSSI()),
		Connectable: a.Connectable(),
	}
}

var _ ble.Adapter = (*adapter)(nil)

// Package session drives one sensor connection from connect to teardown: it discovers the sensor's
// GATT characteristics, writes its configuration registers, streams notifications through frame
// reassembly and decoding, and hands readings to a recorder until the link drops or the context
// is canceled.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imu-telemetry/imu-logger/internal/log"
	"github.com/imu-telemetry/imu-logger/pkg/connector/ble"
	"github.com/imu-telemetry/imu-logger/pkg/protocol"
	"github.com/imu-telemetry/imu-logger/pkg/recorder"
)

const (
	DefaultServiceUUID = "0000ffe5-0000-1000-8000-00805f9a34fb"
	DefaultNotifyUUID  = "0000ffe4-0000-1000-8000-00805f9a34fb"
	DefaultWriteUUID   = "0000ffe9-0000-1000-8000-00805f9a34fb"

	DefaultOutputMode       = 0x02 // acceleration, angular velocity and timestamp
	DefaultRate             = 0x0B
	DefaultCommandDelay     = 100 * time.Millisecond
	DefaultLivenessInterval = time.Second
	DefaultConnectTimeout   = 15 * time.Second
)

// State is a step in the session lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateDiscovering
	StateConfiguring
	StateStreaming
	StateDisconnecting
	StateFailed
)

var stateNames = map[State]string{
	StateDisconnected:  "disconnected",
	StateConnecting:    "connecting",
	StateDiscovering:   "discovering",
	StateConfiguring:   "configuring",
	StateStreaming:     "streaming",
	StateDisconnecting: "disconnecting",
	StateFailed:        "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Identity names a sensor. It does not change for the lifetime of a session.
type Identity struct {
	Address string
	Label   string
}

func (i Identity) String() string {
	if i.Label == "" {
		return i.Address
	}
	return i.Label + " " + i.Address
}

// Config holds the settings shared by every session in a deployment. Empty UUIDs and non-positive
// LivenessInterval or ConnectTimeout select the defaults.
type Config struct {
	ServiceUUID string
	NotifyUUID  string
	WriteUUID   string
	OutputMode  uint16
	Rate        uint16

	// CommandDelay separates configuration writes. The firmware drops commands that arrive
	// back to back.
	CommandDelay     time.Duration
	LivenessInterval time.Duration
	ConnectTimeout   time.Duration

	// OutputRoot is the directory under which each sensor gets a log directory.
	OutputRoot string
	Recorder   recorder.Options
	Decoder    protocol.Decoder
}

// DefaultConfig returns the settings for the sensor's factory GATT layout.
func DefaultConfig() Config {
	return Config{
		ServiceUUID:      DefaultServiceUUID,
		NotifyUUID:       DefaultNotifyUUID,
		WriteUUID:        DefaultWriteUUID,
		OutputMode:       DefaultOutputMode,
		Rate:             DefaultRate,
		CommandDelay:     DefaultCommandDelay,
		LivenessInterval: DefaultLivenessInterval,
		ConnectTimeout:   DefaultConnectTimeout,
		OutputRoot:       ".",
		Recorder: recorder.Options{
			Window:        recorder.DefaultWindow,
			FlushInterval: recorder.DefaultFlushInterval,
		},
	}
}

func (c Config) withDefaults() Config {
	if c.ServiceUUID == "" {
		c.ServiceUUID = DefaultServiceUUID
	}
	if c.NotifyUUID == "" {
		c.NotifyUUID = DefaultNotifyUUID
	}
	if c.WriteUUID == "" {
		c.WriteUUID = DefaultWriteUUID
	}
	if c.CommandDelay < 0 {
		c.CommandDelay = 0
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = DefaultLivenessInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}

// Session is the lifecycle of one connection to one sensor. A Session is run once; reconnecting
// requires a new Session.
type Session struct {
	identity Identity
	config   Config
	adapter  ble.Adapter
	beacon   *ble.Beacon
	recorder *recorder.Recorder

	// Touched only by the transport's notification goroutine.
	assembler protocol.Assembler
	onReading func(protocol.Reading)

	state    atomic.Int32
	frames   atomic.Uint64
	readings atomic.Uint64
}

// Option customizes a Session.
type Option func(*Session)

// WithReadingObserver calls fn with every decoded reading, on the notification goroutine, after it
// has been queued for recording. fn must not block.
func WithReadingObserver(fn func(protocol.Reading)) Option {
	return func(s *Session) {
		s.onReading = fn
	}
}

// New prepares a session for the sensor advertised by beacon. The sensor's log directory is
// created immediately.
func New(identity Identity, beacon *ble.Beacon, adapter ble.Adapter, config Config, options ...Option) (*Session, error) {
	config = config.withDefaults()
	recorderOptions := config.Recorder
	recorderOptions.Tag = identity.String()
	rec, err := recorder.New(config.OutputRoot, identity.Address, recorderOptions)
	if err != nil {
		return nil, err
	}
	s := &Session{
		identity: identity,
		config:   config,
		adapter:  adapter,
		beacon:   beacon,
		recorder: rec,
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// State returns the session's current lifecycle state. It is safe to call from any goroutine.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Recorder returns the recorder readings are written to.
func (s *Session) Recorder() *recorder.Recorder {
	return s.recorder
}

func (s *Session) setState(state State) {
	log.Debug("[%s] %s -> %s", s.identity, s.State(), state)
	s.state.Store(int32(state))
}

// fail marks the session failed unless ctx was canceled, in which case teardown ends it as
// disconnected.
func (s *Session) fail(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		s.setState(StateFailed)
	}
	return err
}

// Run connects to the sensor and streams readings until the sensor disconnects, a step fails, or
// ctx is canceled. It returns protocol.ErrDisconnected after an unexpected disconnect and
// ctx.Err() after cancellation. Readings still buffered when ctx is canceled may be lost.
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateConnecting)
	connectCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	device, err := s.adapter.Connect(connectCtx, s.beacon)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
		}
		return s.fail(ctx, fmt.Errorf("connect: %w", err))
	}
	log.Info("[%s] Connected", s.identity)

	subscribed := false
	defer func() {
		s.teardown(device, subscribed)
	}()

	s.setState(StateDiscovering)
	if err := s.discover(ctx, device); err != nil {
		return s.fail(ctx, err)
	}

	s.setState(StateConfiguring)
	if err := s.configure(ctx, device); err != nil {
		return s.fail(ctx, err)
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	var worker sync.WaitGroup
	worker.Add(1)
	go func() {
		defer worker.Done()
		s.recorder.Run(workerCtx)
	}()
	defer func() {
		stopWorker()
		worker.Wait()
	}()

	if err := device.StartNotify(s.config.NotifyUUID, s.onNotification); err != nil {
		return s.fail(ctx, fmt.Errorf("subscribe: %w", err))
	}
	subscribed = true
	s.setState(StateStreaming)
	log.Info("[%s] Streaming", s.identity)

	return s.monitor(ctx, device)
}

func (s *Session) discover(ctx context.Context, device ble.Device) error {
	services, err := device.DiscoverServices(ctx)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	serviceUUID := ble.NormalizeUUID(s.config.ServiceUUID)
	notifyUUID := ble.NormalizeUUID(s.config.NotifyUUID)
	writeUUID := ble.NormalizeUUID(s.config.WriteUUID)
	for _, service := range services {
		if ble.NormalizeUUID(service.UUID) != serviceUUID {
			continue
		}
		var foundNotify, foundWrite bool
		for _, characteristic := range service.Characteristics {
			switch ble.NormalizeUUID(characteristic) {
			case notifyUUID:
				foundNotify = true
			case writeUUID:
				foundWrite = true
			}
		}
		if !foundNotify || !foundWrite {
			log.Error("[%s] Service %s lacks required characteristics", s.identity, serviceUUID)
			return protocol.ErrCharacteristicNotFound
		}
		return nil
	}
	log.Error("[%s] Service %s not found", s.identity, serviceUUID)
	return protocol.ErrServiceNotFound
}

// configure writes the configuration registers strictly in order with a pause between commands.
func (s *Session) configure(ctx context.Context, device ble.Device) error {
	for i, command := range protocol.ConfigureSequence(s.config.OutputMode, s.config.Rate) {
		if i > 0 {
			if err := sleep(ctx, s.config.CommandDelay); err != nil {
				return err
			}
		}
		log.Debug("[%s] TX: %02x", s.identity, command)
		if err := device.Write(ctx, s.config.WriteUUID, command); err != nil {
			log.Warning("[%s] Failed to write command %02x: %s", s.identity, command, err)
			return fmt.Errorf("configure: %w", err)
		}
	}
	log.Info("[%s] Set output mode to 0x%02x and rate to 0x%02x", s.identity, s.config.OutputMode, s.config.Rate)
	return nil
}

func (s *Session) monitor(ctx context.Context, device ble.Device) error {
	ticker := time.NewTicker(s.config.LivenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !device.IsConnected() {
				log.Warning("[%s] Device disconnected unexpectedly", s.identity)
				return protocol.ErrDisconnected
			}
		}
	}
}

func (s *Session) teardown(device ble.Device, subscribed bool) {
	failed := s.State() == StateFailed
	s.setState(StateDisconnecting)
	if subscribed {
		if err := device.StopNotify(s.config.NotifyUUID); err != nil {
			log.Warning("[%s] Failed to unsubscribe: %s", s.identity, err)
		}
	}
	if err := device.Close(); err != nil {
		log.Warning("[%s] Failed to disconnect: %s", s.identity, err)
	}
	if err := s.recorder.Flush(); err != nil && !errors.Is(err, protocol.ErrNoWindow) {
		log.Warning("[%s] Dropping %d unflushed records: %s", s.identity, s.recorder.Pending(), err)
	}
	log.Info("[%s] Session ended after %d frames (%d readings)", s.identity, s.frames.Load(), s.readings.Load())
	if failed {
		s.setState(StateFailed)
	} else {
		s.setState(StateDisconnected)
	}
}

func (s *Session) onNotification(buf []byte) {
	s.assembler.Write(buf, s.onFrame)
}

func (s *Session) onFrame(frame *protocol.Frame) {
	s.frames.Add(1)
	reading, ok := s.config.Decoder.Decode(frame)
	if !ok {
		return
	}
	s.readings.Add(1)
	s.recorder.Add(reading)
	if s.onReading != nil {
		s.onReading(reading)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

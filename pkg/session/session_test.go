package session_test

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/imu-telemetry/imu-logger/mocks"
	"github.com/imu-telemetry/imu-logger/pkg/connector/ble"
	"github.com/imu-telemetry/imu-logger/pkg/protocol"
	"github.com/imu-telemetry/imu-logger/pkg/recorder"
	"github.com/imu-telemetry/imu-logger/pkg/session"
)

const address = "DC:A8:A0:E8:F2:D9"

func motionFrame(ticks uint32, raw ...uint16) []byte {
	frame := make([]byte, protocol.FrameLength)
	frame[0] = protocol.SyncByte
	frame[1] = protocol.FrameTypeMotion
	for i, v := range raw {
		binary.LittleEndian.PutUint16(frame[2+2*i:], v)
	}
	binary.LittleEndian.PutUint32(frame[14:], ticks)
	return frame
}

func sensorServices() []ble.ServiceInfo {
	return []ble.ServiceInfo{
		{UUID: "00001800-0000-1000-8000-00805f9b34fb", Characteristics: []string{"00002a00-0000-1000-8000-00805f9b34fb"}},
		{UUID: "0000FFE5-0000-1000-8000-00805F9A34FB", Characteristics: []string{session.DefaultNotifyUUID, session.DefaultWriteUUID}},
	}
}

var _ = Describe("Session", func() {
	var (
		ctrl      *gomock.Controller
		adapter   *mocks.MockAdapter
		device    *mocks.MockDevice
		config    session.Config
		beacon    *ble.Beacon
		connected atomic.Bool
		handlerMu sync.Mutex
		handler   func([]byte)
	)

	notify := func(buf []byte) {
		handlerMu.Lock()
		h := handler
		handlerMu.Unlock()
		Expect(h).ToNot(BeNil())
		h(buf)
	}

	expectConfigurationOf := func(outputMode, rate uint16) {
		var previous *gomock.Call
		for _, command := range protocol.ConfigureSequence(outputMode, rate) {
			call := device.EXPECT().Write(gomock.Any(), session.DefaultWriteUUID, command).Return(nil)
			if previous != nil {
				call.After(previous)
			}
			previous = call
		}
	}

	expectConfiguration := func() {
		expectConfigurationOf(session.DefaultOutputMode, session.DefaultRate)
	}

	expectStreaming := func() {
		device.EXPECT().StartNotify(session.DefaultNotifyUUID, gomock.Any()).DoAndReturn(
			func(_ string, h func([]byte)) error {
				handlerMu.Lock()
				handler = h
				handlerMu.Unlock()
				return nil
			})
		device.EXPECT().IsConnected().DoAndReturn(connected.Load).AnyTimes()
		device.EXPECT().StopNotify(session.DefaultNotifyUUID).Return(nil)
		device.EXPECT().Close().Return(nil)
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		adapter = mocks.NewMockAdapter(ctrl)
		device = mocks.NewMockDevice(ctrl)
		beacon = &ble.Beacon{Address: address, Connectable: true}
		connected.Store(true)
		handler = nil

		config = session.DefaultConfig()
		config.OutputRoot = GinkgoT().TempDir()
		config.CommandDelay = time.Millisecond
		config.LivenessInterval = 5 * time.Millisecond
		config.Recorder = recorder.Options{Window: time.Hour, FlushInterval: 10 * time.Millisecond}
	})

	AfterEach(func() {
		ctrl.Finish()
	})

	newSession := func(options ...session.Option) *session.Session {
		s, err := session.New(session.Identity{Address: address, Label: "left-wrist"}, beacon, adapter, config, options...)
		Expect(err).ToNot(HaveOccurred())
		return s
	}

	Context("streaming", func() {
		It("records readings until the sensor disconnects", func() {
			adapter.EXPECT().Connect(gomock.Any(), beacon).Return(device, nil)
			device.EXPECT().DiscoverServices(gomock.Any()).Return(sensorServices(), nil)
			expectConfiguration()
			expectStreaming()

			var observed atomic.Int32
			s := newSession(session.WithReadingObserver(func(protocol.Reading) {
				observed.Add(1)
			}))
			Expect(s.State()).To(Equal(session.StateDisconnected))

			result := make(chan error, 1)
			go func() {
				result <- s.Run(context.Background())
			}()
			Eventually(s.State).Should(Equal(session.StateStreaming))

			first := motionFrame(1, 16384, 0, 0, 0, 0, 0)
			second := motionFrame(2, 0xC000, 0, 0, 0, 0, 0)
			generic := append([]byte{}, first...)
			generic[1] = protocol.FrameTypeGeneric
			stream := append([]byte{0x12}, first...)
			stream = append(stream, generic...)
			stream = append(stream, second...)
			notify(stream[:7])
			notify(stream[7:33])
			notify(stream[33:])

			Eventually(func() int32 { return observed.Load() }).Should(Equal(int32(2)))
			Eventually(s.Recorder().Pending).Should(BeZero())

			connected.Store(false)
			Eventually(result).Should(Receive(MatchError(protocol.ErrDisconnected)))
			Expect(s.State()).To(Equal(session.StateDisconnected))

			path, ok := s.Recorder().Window()
			Expect(ok).To(BeTrue())
			Expect(path).To(HavePrefix(recorder.DeviceDir(config.OutputRoot, address)))
			data, err := os.ReadFile(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(strings.Split(strings.TrimSpace(string(data)), "\n")).To(Equal([]string{
				"1 8 0 0 0 0 0",
				"2 -8 0 0 0 0 0",
			}))
		})

		It("tears down when canceled", func() {
			adapter.EXPECT().Connect(gomock.Any(), beacon).Return(device, nil)
			device.EXPECT().DiscoverServices(gomock.Any()).Return(sensorServices(), nil)
			expectConfiguration()
			expectStreaming()

			s := newSession()
			ctx, cancel := context.WithCancel(context.Background())
			result := make(chan error, 1)
			go func() {
				result <- s.Run(ctx)
			}()
			Eventually(s.State).Should(Equal(session.StateStreaming))
			cancel()
			Eventually(result).Should(Receive(MatchError(context.Canceled)))
			Expect(s.State()).To(Equal(session.StateDisconnected))
		})
	})

	Context("configuration", func() {
		It("pauses between configuration commands", func() {
			config.CommandDelay = 20 * time.Millisecond
			adapter.EXPECT().Connect(gomock.Any(), beacon).Return(device, nil)
			device.EXPECT().DiscoverServices(gomock.Any()).Return(sensorServices(), nil)
			var (
				writesMu sync.Mutex
				writes   []time.Time
			)
			device.EXPECT().Write(gomock.Any(), session.DefaultWriteUUID, gomock.Any()).DoAndReturn(
				func(context.Context, string, []byte) error {
					writesMu.Lock()
					writes = append(writes, time.Now())
					writesMu.Unlock()
					return nil
				}).Times(len(protocol.ConfigureSequence(session.DefaultOutputMode, session.DefaultRate)))
			expectStreaming()

			s := newSession()
			ctx, cancel := context.WithCancel(context.Background())
			result := make(chan error, 1)
			go func() {
				result <- s.Run(ctx)
			}()
			Eventually(s.State).Should(Equal(session.StateStreaming))
			cancel()
			Eventually(result).Should(Receive(MatchError(context.Canceled)))

			writesMu.Lock()
			defer writesMu.Unlock()
			Expect(writes).To(HaveLen(4))
			for i := 1; i < len(writes); i++ {
				Expect(writes[i].Sub(writes[i-1])).To(BeNumerically(">=", config.CommandDelay))
			}
		})

		It("runs with defaults when only the output root is set", func() {
			config = session.Config{OutputRoot: GinkgoT().TempDir()}
			var connectBudget time.Duration
			adapter.EXPECT().Connect(gomock.Any(), beacon).DoAndReturn(
				func(ctx context.Context, _ *ble.Beacon) (ble.Device, error) {
					if deadline, ok := ctx.Deadline(); ok && ctx.Err() == nil {
						connectBudget = time.Until(deadline)
					}
					return device, nil
				})
			device.EXPECT().DiscoverServices(gomock.Any()).Return(sensorServices(), nil)
			expectConfigurationOf(0, 0)
			expectStreaming()

			s := newSession()
			result := make(chan error, 1)
			go func() {
				result <- s.Run(context.Background())
			}()
			Eventually(s.State).Should(Equal(session.StateStreaming))
			Expect(connectBudget).To(BeNumerically(">", time.Second))
			connected.Store(false)
			Eventually(result).WithTimeout(5 * time.Second).Should(Receive(MatchError(protocol.ErrDisconnected)))
			Expect(s.State()).To(Equal(session.StateDisconnected))
		})
	})

	Context("cancellation", func() {
		It("stops while connecting", func() {
			connecting := make(chan struct{})
			adapter.EXPECT().Connect(gomock.Any(), beacon).DoAndReturn(
				func(ctx context.Context, _ *ble.Beacon) (ble.Device, error) {
					close(connecting)
					<-ctx.Done()
					return nil, ctx.Err()
				})

			s := newSession()
			ctx, cancel := context.WithCancel(context.Background())
			result := make(chan error, 1)
			go func() {
				result <- s.Run(ctx)
			}()
			Eventually(connecting).Should(BeClosed())
			cancel()
			Eventually(result).Should(Receive(MatchError(context.Canceled)))
			Expect(s.State()).To(Equal(session.StateDisconnected))
		})

		It("disconnects when canceled between configuration commands", func() {
			config.CommandDelay = time.Hour
			written := make(chan struct{})
			adapter.EXPECT().Connect(gomock.Any(), beacon).Return(device, nil)
			device.EXPECT().DiscoverServices(gomock.Any()).Return(sensorServices(), nil)
			device.EXPECT().Write(gomock.Any(), session.DefaultWriteUUID, protocol.UnlockCommand()).DoAndReturn(
				func(context.Context, string, []byte) error {
					close(written)
					return nil
				})
			device.EXPECT().Close().Return(nil)

			s := newSession()
			ctx, cancel := context.WithCancel(context.Background())
			result := make(chan error, 1)
			go func() {
				result <- s.Run(ctx)
			}()
			Eventually(written).Should(BeClosed())
			Expect(s.State()).To(Equal(session.StateConfiguring))
			cancel()
			Eventually(result).Should(Receive(MatchError(context.Canceled)))
			Expect(s.State()).To(Equal(session.StateDisconnected))
		})
	})

	Context("failures", func() {
		It("fails when the connection cannot be established", func() {
			cause := &protocol.TransportError{Op: "connect", Address: address, Err: errors.New("timeout")}
			adapter.EXPECT().Connect(gomock.Any(), beacon).Return(nil, cause)

			s := newSession()
			err := s.Run(context.Background())
			Expect(err).To(MatchError(cause))
			Expect(protocol.Temporary(err)).To(BeTrue())
			Expect(s.State()).To(Equal(session.StateFailed))
		})

		It("fails when the target service is missing", func() {
			adapter.EXPECT().Connect(gomock.Any(), beacon).Return(device, nil)
			device.EXPECT().DiscoverServices(gomock.Any()).Return(sensorServices()[:1], nil)
			device.EXPECT().Close().Return(nil)

			s := newSession()
			Expect(s.Run(context.Background())).To(MatchError(protocol.ErrServiceNotFound))
			Expect(s.State()).To(Equal(session.StateFailed))
		})

		It("fails when the write characteristic is missing", func() {
			services := sensorServices()
			services[1].Characteristics = []string{session.DefaultNotifyUUID}
			adapter.EXPECT().Connect(gomock.Any(), beacon).Return(device, nil)
			device.EXPECT().DiscoverServices(gomock.Any()).Return(services, nil)
			device.EXPECT().Close().Return(nil)

			s := newSession()
			Expect(s.Run(context.Background())).To(MatchError(protocol.ErrCharacteristicNotFound))
			Expect(s.State()).To(Equal(session.StateFailed))
		})

		It("stops configuring after a failed write", func() {
			cause := errors.New("write rejected")
			adapter.EXPECT().Connect(gomock.Any(), beacon).Return(device, nil)
			device.EXPECT().DiscoverServices(gomock.Any()).Return(sensorServices(), nil)
			gomock.InOrder(
				device.EXPECT().Write(gomock.Any(), session.DefaultWriteUUID, protocol.UnlockCommand()).Return(nil),
				device.EXPECT().Write(gomock.Any(), session.DefaultWriteUUID, gomock.Any()).Return(cause),
			)
			device.EXPECT().Close().Return(nil)

			s := newSession()
			Expect(s.Run(context.Background())).To(MatchError(cause))
			Expect(s.State()).To(Equal(session.StateFailed))
		})

		It("fails when notifications cannot be enabled", func() {
			cause := errors.New("cccd write failed")
			adapter.EXPECT().Connect(gomock.Any(), beacon).Return(device, nil)
			device.EXPECT().DiscoverServices(gomock.Any()).Return(sensorServices(), nil)
			expectConfiguration()
			device.EXPECT().StartNotify(session.DefaultNotifyUUID, gomock.Any()).Return(cause)
			device.EXPECT().Close().Return(nil)

			s := newSession()
			Expect(s.Run(context.Background())).To(MatchError(cause))
			Expect(s.State()).To(Equal(session.StateFailed))
		})
	})

	Describe("State", func() {
		It("has readable names", func() {
			Expect(session.StateStreaming.String()).To(Equal("streaming"))
			Expect(session.State(42).String()).To(Equal("State(42)"))
		})
	})
})

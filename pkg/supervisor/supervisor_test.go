package supervisor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/imu-telemetry/imu-logger/mocks"
	"github.com/imu-telemetry/imu-logger/pkg/connector/ble"
	"github.com/imu-telemetry/imu-logger/pkg/protocol"
	"github.com/imu-telemetry/imu-logger/pkg/session"
	"github.com/imu-telemetry/imu-logger/pkg/supervisor"
)

var (
	leftWrist  = session.Identity{Address: "DC:A8:A0:E8:F2:D9", Label: "left-wrist"}
	rightWrist = session.Identity{Address: "DC:A8:A0:E8:F2:DA", Label: "right-wrist"}
)

var _ = Describe("Supervisor", func() {
	var (
		ctrl    *gomock.Controller
		adapter *mocks.MockAdapter
		options supervisor.Options
		ctx     context.Context
		cancel  context.CancelFunc
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		adapter = mocks.NewMockAdapter(ctrl)

		options = supervisor.Options{
			ScanTimeout: time.Hour,
			RetryJitter: 5 * time.Millisecond,
			Session:     session.DefaultConfig(),
		}
		options.Session.OutputRoot = GinkgoT().TempDir()
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
		ctrl.Finish()
	})

	run := func(identities ...session.Identity) <-chan struct{} {
		done := make(chan struct{})
		s := supervisor.New(adapter, options)
		go func() {
			defer close(done)
			s.Run(ctx, identities)
		}()
		return done
	}

	blockUntilCanceled := func(ctx context.Context, _ string) (*ble.Beacon, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	It("keeps scanning while the sensor is absent", func() {
		var scans atomic.Int32
		adapter.EXPECT().ScanAddress(gomock.Any(), "dc:a8:a0:e8:f2:d9").DoAndReturn(
			func(context.Context, string) (*ble.Beacon, error) {
				scans.Add(1)
				return nil, protocol.ErrDeviceNotFound
			}).MinTimes(3)

		done := run(leftWrist)
		Eventually(scans.Load).Should(BeNumerically(">=", 3))
		cancel()
		Eventually(done).Should(BeClosed())
	})

	It("reconnects after a failed session", func() {
		beacon := &ble.Beacon{Address: leftWrist.Address, RSSI: -58, Connectable: true}
		var connects atomic.Int32
		adapter.EXPECT().ScanAddress(gomock.Any(), "dc:a8:a0:e8:f2:d9").Return(beacon, nil).MinTimes(2)
		adapter.EXPECT().Connect(gomock.Any(), beacon).DoAndReturn(
			func(context.Context, *ble.Beacon) (ble.Device, error) {
				connects.Add(1)
				return nil, &protocol.TransportError{Op: "connect", Address: leftWrist.Address, Err: errors.New("le-connection-abort-by-local")}
			}).MinTimes(2)

		done := run(leftWrist)
		Eventually(connects.Load).Should(BeNumerically(">=", 2))
		cancel()
		Eventually(done).Should(BeClosed())
	})

	It("does not let one sensor hold up another", func() {
		var scans atomic.Int32
		adapter.EXPECT().ScanAddress(gomock.Any(), "dc:a8:a0:e8:f2:d9").DoAndReturn(blockUntilCanceled)
		adapter.EXPECT().ScanAddress(gomock.Any(), "dc:a8:a0:e8:f2:da").DoAndReturn(
			func(context.Context, string) (*ble.Beacon, error) {
				scans.Add(1)
				return nil, protocol.ErrDeviceNotFound
			}).MinTimes(3)

		done := run(leftWrist, rightWrist)
		Eventually(scans.Load).Should(BeNumerically(">=", 3))
		cancel()
		Eventually(done).Should(BeClosed())
	})

	It("retries after a scan times out", func() {
		options.ScanTimeout = 10 * time.Millisecond
		var scans atomic.Int32
		adapter.EXPECT().ScanAddress(gomock.Any(), "dc:a8:a0:e8:f2:d9").DoAndReturn(
			func(ctx context.Context, address string) (*ble.Beacon, error) {
				scans.Add(1)
				return blockUntilCanceled(ctx, address)
			}).MinTimes(2)

		done := run(leftWrist)
		Eventually(scans.Load).Should(BeNumerically(">=", 2))
		cancel()
		Eventually(done).Should(BeClosed())
	})

	It("stops while waiting to retry", func() {
		options.RetryJitter = time.Hour
		scanned := make(chan struct{})
		adapter.EXPECT().ScanAddress(gomock.Any(), "dc:a8:a0:e8:f2:d9").DoAndReturn(
			func(context.Context, string) (*ble.Beacon, error) {
				close(scanned)
				return nil, protocol.ErrDeviceNotFound
			})

		done := run(leftWrist)
		Eventually(scanned).Should(BeClosed())
		cancel()
		Eventually(done).Should(BeClosed())
	})

	Describe("Attempt", func() {
		It("returns the scan error", func() {
			adapter.EXPECT().ScanAddress(gomock.Any(), "dc:a8:a0:e8:f2:d9").Return(nil, protocol.ErrDeviceNotFound)
			s := supervisor.New(adapter, options)
			Expect(s.Attempt(ctx, leftWrist)).To(MatchError(protocol.ErrDeviceNotFound))
		})

		It("returns the session error", func() {
			beacon := &ble.Beacon{Address: leftWrist.Address}
			cause := errors.New("le-connection-abort-by-local")
			adapter.EXPECT().ScanAddress(gomock.Any(), "dc:a8:a0:e8:f2:d9").Return(beacon, nil)
			adapter.EXPECT().Connect(gomock.Any(), beacon).Return(nil, cause)
			s := supervisor.New(adapter, options)
			Expect(s.Attempt(ctx, leftWrist)).To(MatchError(cause))
		})
	})
})

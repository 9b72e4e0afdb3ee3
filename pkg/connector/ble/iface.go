package ble

import (
	"context"
)

// Beacon is an advertisement from a sensor found during a scan.
type Beacon struct {
	Address     string
	LocalName   string
	RSSI        int16
	Connectable bool
}

// ServiceInfo describes a discovered GATT service by UUID, along with the UUIDs of its
// characteristics. UUIDs use the canonical lowercase dashed form.
type ServiceInfo struct {
	UUID            string
	Characteristics []string
}

// Adapter finds and connects to sensors.
type Adapter interface {
	// ScanAddress blocks until a sensor advertising from address is found or ctx is done.
	ScanAddress(ctx context.Context, address string) (*Beacon, error)
	Connect(ctx context.Context, beacon *Beacon) (Device, error)
	Close() error
}

// Device is a connected sensor. Implementations must be safe for use from one goroutine while
// notification callbacks run on another.
type Device interface {
	DiscoverServices(ctx context.Context) ([]ServiceInfo, error)
	// StartNotify routes every notification received on the characteristic to handler. The slice
	// passed to handler may be reused after it returns.
	StartNotify(characteristic string, handler func(buf []byte)) error
	StopNotify(characteristic string) error
	Write(ctx context.Context, characteristic string, p []byte) error
	IsConnected() bool
	// Close releases the connection. Repeated calls must be safe.
	Close() error
}

package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	goble "github.com/go-ble/ble"

	"github.com/imu-telemetry/imu-logger/pkg/connector/ble"
	"github.com/imu-telemetry/imu-logger/pkg/protocol"
)

type device struct {
	address string
	client  goble.Client

	lock            sync.Mutex
	characteristics map[string]*goble.Characteristic
	closed          bool
}

func newConnectedDevice(address string, client goble.Client) *device {
	return &device{
		address:         address,
		client:          client,
		characteristics: make(map[string]*goble.Characteristic),
	}
}

func (d *device) transportError(op string, err error) error {
	return &protocol.TransportError{Op: op, Address: d.address, Err: err}
}

func (d *device) DiscoverServices(ctx context.Context) ([]ble.ServiceInfo, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	profile, err := d.client.DiscoverProfile(true)
	if err != nil {
		return nil, d.transportError("discover", err)
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	var services []ble.ServiceInfo
	for _, s := range profile.Services {
		info := ble.ServiceInfo{UUID: ble.NormalizeUUID(s.UUID.String())}
		for _, c := range s.Characteristics {
			uuid := ble.NormalizeUUID(c.UUID.String())
			info.Characteristics = append(info.Characteristics, uuid)
			d.characteristics[uuid] = c
		}
		services = append(services, info)
	}
	return services, nil
}

func (d *device) lookup(uuid string) (*goble.Characteristic, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	c, ok := d.characteristics[ble.NormalizeUUID(uuid)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrCharacteristicNotFound, uuid)
	}
	return c, nil
}

func (d *device) StartNotify(uuid string, handler func(buf []byte)) error {
	c, err := d.lookup(uuid)
	if err != nil {
		return err
	}
	if err := d.client.Subscribe(c, false, handler); err != nil {
		return d.transportError("subscribe", err)
	}
	return nil
}

func (d *device) StopNotify(uuid string) error {
	c, err := d.lookup(uuid)
	if err != nil {
		return err
	}
	if err := d.client.Unsubscribe(c, false); err != nil {
		return d.transportError("unsubscribe", err)
	}
	return nil
}

func (d *device) Write(ctx context.Context, uuid string, p []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c, err := d.lookup(uuid)
	if err != nil {
		return err
	}
	if err := d.client.WriteCharacteristic(c, p, false); err != nil {
		return d.transportError("write", err)
	}
	return nil
}

func (d *device) IsConnected() bool {
	d.lock.Lock()
	closed := d.closed
	d.lock.Unlock()
	if closed {
		return false
	}
	select {
	case <-d.client.Disconnected():
		return false
	default:
		return true
	}
}

func (d *device) Close() error {
	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		return nil
	}
	d.closed = true
	d.lock.Unlock()

	err1 := d.client.ClearSubscriptions()
	err2 := d.client.CancelConnection()
	return errors.Join(err1, err2)
}

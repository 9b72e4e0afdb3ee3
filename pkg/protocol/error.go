package protocol

import (
	"errors"
	"fmt"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// Temporary returns true if the Error might be the result of a transient condition that a
	// later connection attempt can clear, such as the sensor being out of range or powered down.
	Temporary() bool
}

var (
	// ErrDeviceNotFound indicates a scan ended without an advertisement from the target address.
	ErrDeviceNotFound = NewError("sensor not found during scan", true)
	// ErrServiceNotFound indicates the sensor does not expose the configured GATT service.
	ErrServiceNotFound = NewError("sensor does not expose the target service", false)
	// ErrCharacteristicNotFound indicates the notify or write characteristic is missing from
	// the target service.
	ErrCharacteristicNotFound = NewError("target service lacks the notify or write characteristic", false)
	// ErrDisconnected indicates the sensor dropped the connection while streaming.
	ErrDisconnected = NewError("sensor disconnected unexpectedly", true)
	// ErrNoWindow indicates a flush was attempted while no log window is open.
	ErrNoWindow = errors.New("no active log window")
)

type SensorError struct {
	Err               error
	PossibleTemporary bool
}

func NewError(message string, temporary bool) error {
	return &SensorError{Err: errors.New(message), PossibleTemporary: temporary}
}

func (e *SensorError) Error() string {
	return e.Err.Error()
}

func (e *SensorError) Unwrap() error {
	return e.Err
}

func (e *SensorError) Temporary() bool {
	return e.PossibleTemporary
}

// TransportError records which transport operation failed against which sensor. Transport
// failures are always recoverable by reconnecting.
type TransportError struct {
	Op      string
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return true
}

// StorageError wraps a failure to persist buffered readings.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %s", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// StorageErrors are retried on the next flush cycle.
func (e *StorageError) Temporary() bool {
	return true
}

// Temporary returns true if err is an Error that indicates the failure is possibly transient and
// does not require operator action to resolve.
func Temporary(err error) bool {
	var sensorErr Error
	if errors.As(err, &sensorErr) && sensorErr.Temporary() {
		return true
	}
	return false
}

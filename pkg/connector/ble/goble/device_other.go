//go:build !linux && !darwin

package goble

import (
	"errors"

	goble "github.com/go-ble/ble"
)

func newDevice(_ string) (goble.Device, error) {
	return nil, errors.New("bluetooth is only supported on Linux and macOS")
}

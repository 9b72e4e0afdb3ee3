// Package ble defines the capabilities a sensor session needs from a Bluetooth LE stack. The
// goble subpackage implements them on top of github.com/go-ble/ble.
package ble

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/imu-telemetry/imu-logger/pkg/protocol"
)

var macPattern = regexp.MustCompile(`^([0-9a-fA-F]{2}[:-]){5}[0-9a-fA-F]{2}$`)

// ValidAddress returns true if address is a colon- or dash-separated MAC address.
func ValidAddress(address string) bool {
	return macPattern.MatchString(address)
}

// NormalizeAddress returns address in lowercase with colon separators.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.ReplaceAll(address, "-", ":"))
}

// NormalizeUUID converts a UUID to lowercase dashed form. 16-bit short UUIDs are expanded with the
// Bluetooth base UUID.
func NormalizeUUID(uuid string) string {
	uuid = strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	switch len(uuid) {
	case 4:
		uuid = "0000" + uuid + "00001000800000805f9b34fb"
	case 8:
		uuid = uuid + "00001000800000805f9b34fb"
	}
	if len(uuid) != 32 {
		return uuid
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s", uuid[0:8], uuid[8:12], uuid[12:16], uuid[16:20], uuid[20:])
}

// Scan looks for a sensor advertising from address for at most timeout. Running out of time is
// reported as protocol.ErrDeviceNotFound; cancellation of ctx is returned as is.
func Scan(ctx context.Context, adapter Adapter, address string, timeout time.Duration) (*Beacon, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	beacon, err := adapter.ScanAddress(scanCtx, NormalizeAddress(address))
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, protocol.ErrDeviceNotFound
		}
		return nil, err
	}
	if beacon == nil {
		return nil, protocol.ErrDeviceNotFound
	}
	return beacon, nil
}

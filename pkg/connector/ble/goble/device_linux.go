package goble

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

const bleTimeout = 20 * time.Second

var scanParams = cmd.LESetScanParameters{
	LEScanType:           1,    // Active scanning
	LEScanInterval:       0x10, // 10ms
	LEScanWindow:         0x10, // 10ms
	OwnAddressType:       0,    // Static
	ScanningFilterPolicy: 0,    // Accept all advertisements
}

// parseAdapterID accepts either a bare HCI index or the "hciN" interface name.
func parseAdapterID(id string) (int, error) {
	index, err := strconv.Atoi(strings.TrimPrefix(id, "hci"))
	if err != nil || index < 0 {
		return 0, fmt.Errorf("%w: %q", ErrAdapterInvalidID, id)
	}
	return index, nil
}

func newDevice(id string) (goble.Device, error) {
	opts := []goble.Option{
		goble.OptListenerTimeout(bleTimeout),
		goble.OptDialerTimeout(bleTimeout),
		goble.OptScanParams(scanParams),
	}
	if id != "" {
		index, err := parseAdapterID(id)
		if err != nil {
			return nil, err
		}
		opts = append(opts, goble.OptDeviceID(index))
	}
	return linux.NewDevice(opts...)
}

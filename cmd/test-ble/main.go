package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/imu-telemetry/imu-logger/internal/log"
	"github.com/imu-telemetry/imu-logger/pkg/connector/ble"
	"github.com/imu-telemetry/imu-logger/pkg/connector/ble/goble"
)

var (
	btAdapter = flag.String("btAdapter", "", "Optional ID of Bluetooth adapter to use (Linux only)")
	testScan  = flag.String("testScan", "", "Also scan for the sensor with this `address`")
)

func main() {
	flag.Parse()
	log.SetLevel(log.LevelDebug)

	if *btAdapter != "" {
		log.Info("Trying to use BLE adapter: %s", *btAdapter)
	} else {
		log.Info("Using first available BLE device")
	}
	adapter, err := goble.NewAdapter(*btAdapter)
	if err != nil {
		if errors.Is(err, goble.ErrAdapterInvalidID) {
			log.Error("Invalid adapter ID: %s", *btAdapter)
		} else {
			log.Error("Failed to initialize BLE device: %v", err)
		}
		return
	}
	defer adapter.Close()

	log.Info("BLE adapter initialized")

	if *testScan == "" {
		return
	}
	if !ble.ValidAddress(*testScan) {
		log.Error("Invalid sensor address: %s", *testScan)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doneChan := make(chan struct{})
	go func() {
		defer close(doneChan)
		for ctx.Err() == nil {
			beacon, err := adapter.ScanAddress(ctx, ble.NormalizeAddress(*testScan))
			if err != nil {
				if ctx.Err() == nil {
					log.Error("Scan failed: %v", err)
				}
				return
			}
			log.Info("Found %s (%s) RSSI %d", beacon.Address, beacon.LocalName, beacon.RSSI)
		}
	}()
	log.Info("Scanning for %s until interrupted", *testScan)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	select {
	case <-signalChan:
		log.Info("Stopping scan")
	case <-doneChan:
	}
	cancel()
	<-doneChan
}

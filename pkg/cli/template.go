package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/imu-telemetry/imu-logger/internal/log"
)

var ErrConfigExists = errors.New("config file already exists")

// fileConfig is the on-disk layout of a Config. Durations are written in time.Duration notation.
type fileConfig struct {
	Devices          []Device `yaml:"devices"`
	OutputRoot       string   `yaml:"output_root"`
	RunPrefix        string   `yaml:"run_prefix"`
	NewRunDir        bool     `yaml:"new_run_dir"`
	ServiceUUID      string   `yaml:"service_uuid"`
	NotifyUUID       string   `yaml:"notify_uuid"`
	WriteUUID        string   `yaml:"write_uuid"`
	OutputMode       uint16   `yaml:"output_mode"`
	Rate             uint16   `yaml:"rate"`
	Window           string   `yaml:"window"`
	FlushInterval    string   `yaml:"flush_interval"`
	LivenessInterval string   `yaml:"liveness_interval"`
	CommandDelay     string   `yaml:"command_delay"`
	ScanTimeout      string   `yaml:"scan_timeout"`
	ConnectTimeout   string   `yaml:"connect_timeout"`
	RetryJitter      string   `yaml:"retry_jitter"`
	Adapter          string   `yaml:"adapter"`
	UnsignedTicks    bool     `yaml:"unsigned_ticks"`
	Debug            bool     `yaml:"debug"`
}

// MarshalYAML implements yaml.Marshaler.
func (c Config) MarshalYAML() (interface{}, error) {
	return fileConfig{
		Devices:          c.Devices,
		OutputRoot:       c.OutputRoot,
		RunPrefix:        c.RunPrefix,
		NewRunDir:        c.NewRunDir,
		ServiceUUID:      c.ServiceUUID,
		NotifyUUID:       c.NotifyUUID,
		WriteUUID:        c.WriteUUID,
		OutputMode:       c.OutputMode,
		Rate:             c.Rate,
		Window:           c.Window.String(),
		FlushInterval:    c.FlushInterval.String(),
		LivenessInterval: c.LivenessInterval.String(),
		CommandDelay:     c.CommandDelay.String(),
		ScanTimeout:      c.ScanTimeout.String(),
		ConnectTimeout:   c.ConnectTimeout.String(),
		RetryJitter:      c.RetryJitter.String(),
		Adapter:          c.Adapter,
		UnsignedTicks:    c.UnsignedTicks,
		Debug:            c.Debug,
	}, nil
}

// Template returns the defaults with placeholder sensors, as a starting point for a config file.
func Template() Config {
	c := DefaultConfig()
	c.Devices = []Device{
		{Address: "DC:A8:A0:E8:F2:D9", Label: "left-wrist"},
		{Address: "F6:1C:34:2A:9B:07", Label: "right-wrist"},
	}
	return c
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteFile writes c to path, creating parent directories. An existing file is replaced only if
// overwrite is set.
func (c Config) WriteFile(path string, overwrite bool) error {
	buffer, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", filepath.Dir(path), err)
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	log.Info("Writing configuration to %s", path)
	return os.WriteFile(path, buffer, 0600)
}

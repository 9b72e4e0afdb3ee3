/*
Package cli loads the settings shared by the imu-logger commands. A [Config] is assembled by
[Load] from, in increasing order of precedence, built-in defaults, a YAML file, environment
variables prefixed with IMULOGGER_ and command-line flags.

# Examples

	config, err := cli.Load(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}
	root, err := config.PrepareOutput() // Allocates IMU_<n> under config.OutputRoot
	if err != nil {
		return err
	}
	sup := supervisor.New(adapter, config.SupervisorOptions(root))
	sup.Run(ctx, config.Identities())

The config file is taken from the --config flag, then $IMULOGGER_CONFIG, and otherwise searched
for as config.yaml in $HOME/.config/imu-logger, /etc/imu-logger and the working directory.
*/
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imu-telemetry/imu-logger/internal/log"
	"github.com/imu-telemetry/imu-logger/pkg/connector/ble"
	"github.com/imu-telemetry/imu-logger/pkg/protocol"
	"github.com/imu-telemetry/imu-logger/pkg/recorder"
	"github.com/imu-telemetry/imu-logger/pkg/session"
	"github.com/imu-telemetry/imu-logger/pkg/supervisor"
)

const (
	AppName           = "imu-logger"
	DefaultConfigName = "config"
	DefaultRunPrefix  = "IMU"
	EnvPrefix         = "IMULOGGER"
	EnvConfig         = EnvPrefix + "_CONFIG"
)

var userHomeDir, _ = os.UserHomeDir()

// DefaultConfigPath is where init writes the config template unless told otherwise.
var DefaultConfigPath = filepath.Join(userHomeDir, ".config", AppName, DefaultConfigName+".yaml")

// ConfigSearchPaths are searched in order when no config file is named explicitly.
var ConfigSearchPaths = []string{
	filepath.Join(userHomeDir, ".config", AppName),
	"/etc/" + AppName,
	"./",
}

var (
	ErrNoDevices     = errors.New("no devices configured")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Device is one sensor to supervise.
type Device struct {
	Address string `mapstructure:"address" yaml:"address"`
	Label   string `mapstructure:"label" yaml:"label"`
}

// Config is the complete set of deployment settings.
type Config struct {
	Devices []Device `mapstructure:"devices"`

	// OutputRoot holds one directory per run (see NewRunDir), each holding one directory per sensor.
	OutputRoot string `mapstructure:"output_root"`
	RunPrefix  string `mapstructure:"run_prefix"`
	NewRunDir  bool   `mapstructure:"new_run_dir"`

	ServiceUUID string `mapstructure:"service_uuid"`
	NotifyUUID  string `mapstructure:"notify_uuid"`
	WriteUUID   string `mapstructure:"write_uuid"`
	OutputMode  uint16 `mapstructure:"output_mode"`
	Rate        uint16 `mapstructure:"rate"`

	Window           time.Duration `mapstructure:"window"`
	FlushInterval    time.Duration `mapstructure:"flush_interval"`
	LivenessInterval time.Duration `mapstructure:"liveness_interval"`
	CommandDelay     time.Duration `mapstructure:"command_delay"`
	ScanTimeout      time.Duration `mapstructure:"scan_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	RetryJitter      time.Duration `mapstructure:"retry_jitter"`

	// Adapter selects the Bluetooth controller, e.g. "hci1". Empty selects the default.
	Adapter       string `mapstructure:"adapter"`
	UnsignedTicks bool   `mapstructure:"unsigned_ticks"`
	Debug         bool   `mapstructure:"debug"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// DefaultConfig returns a Config with every setting but the device list at its default.
func DefaultConfig() Config {
	return Config{
		OutputRoot:       "./data",
		RunPrefix:        DefaultRunPrefix,
		NewRunDir:        true,
		ServiceUUID:      session.DefaultServiceUUID,
		NotifyUUID:       session.DefaultNotifyUUID,
		WriteUUID:        session.DefaultWriteUUID,
		OutputMode:       session.DefaultOutputMode,
		Rate:             session.DefaultRate,
		Window:           recorder.DefaultWindow,
		FlushInterval:    recorder.DefaultFlushInterval,
		LivenessInterval: session.DefaultLivenessInterval,
		CommandDelay:     session.DefaultCommandDelay,
		ScanTimeout:      supervisor.DefaultScanTimeout,
		ConnectTimeout:   session.DefaultConnectTimeout,
		RetryJitter:      supervisor.DefaultRetryJitter,
	}
}

// RegisterFlags adds the flags Load understands to cmd.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("config", "c", "", "config `file` (defaults to $"+EnvConfig+" or a search of the standard locations)")
	flags.StringP("output", "o", "", "output root `directory`")
	flags.String("adapter", "", "Bluetooth adapter ID, e.g. hci1")
	flags.Bool("debug", false, "enable debug logging")
}

// Load builds a Config for cmd. A config file named explicitly must exist; a missing config file
// found by search is not an error.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	defaults := DefaultConfig()
	v.SetDefault("output_root", defaults.OutputRoot)
	v.SetDefault("run_prefix", defaults.RunPrefix)
	v.SetDefault("new_run_dir", defaults.NewRunDir)
	v.SetDefault("service_uuid", defaults.ServiceUUID)
	v.SetDefault("notify_uuid", defaults.NotifyUUID)
	v.SetDefault("write_uuid", defaults.WriteUUID)
	v.SetDefault("output_mode", defaults.OutputMode)
	v.SetDefault("rate", defaults.Rate)
	v.SetDefault("window", defaults.Window)
	v.SetDefault("flush_interval", defaults.FlushInterval)
	v.SetDefault("liveness_interval", defaults.LivenessInterval)
	v.SetDefault("command_delay", defaults.CommandDelay)
	v.SetDefault("scan_timeout", defaults.ScanTimeout)
	v.SetDefault("connect_timeout", defaults.ConnectTimeout)
	v.SetDefault("retry_jitter", defaults.RetryJitter)
	v.SetDefault("adapter", defaults.Adapter)
	v.SetDefault("unsigned_ticks", defaults.UnsignedTicks)
	v.SetDefault("debug", defaults.Debug)

	explicit := false
	if file, err := cmd.Flags().GetString("config"); err == nil && file != "" {
		v.SetConfigFile(file)
		explicit = true
	} else if file := os.Getenv(EnvConfig); file != "" {
		v.SetConfigFile(file)
		explicit = true
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		for _, path := range ConfigSearchPaths {
			v.AddConfigPath(path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"output_root": "output",
		"adapter":     "adapter",
		"debug":       "debug",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Using config file %s", v.ConfigFileUsed())
	}

	config := defaults
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	config.File = v.ConfigFileUsed()
	return &config, nil
}

// Validate reports the first problem that would keep c from running.
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return ErrNoDevices
	}
	seen := make(map[string]bool)
	for i, device := range c.Devices {
		if !ble.ValidAddress(device.Address) {
			return fmt.Errorf("%w: device %d has malformed address '%s'", ErrInvalidConfig, i, device.Address)
		}
		address := ble.NormalizeAddress(device.Address)
		if seen[address] {
			return fmt.Errorf("%w: device %s is listed more than once", ErrInvalidConfig, device.Address)
		}
		seen[address] = true
	}
	if c.OutputRoot == "" {
		return fmt.Errorf("%w: output_root is empty", ErrInvalidConfig)
	}
	for name, d := range map[string]time.Duration{
		"window":            c.Window,
		"flush_interval":    c.FlushInterval,
		"liveness_interval": c.LivenessInterval,
		"scan_timeout":      c.ScanTimeout,
		"connect_timeout":   c.ConnectTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	if c.CommandDelay < 0 || c.RetryJitter < 0 {
		return fmt.Errorf("%w: command_delay and retry_jitter must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Identities returns the configured sensors in configuration order.
func (c *Config) Identities() []session.Identity {
	identities := make([]session.Identity, 0, len(c.Devices))
	for _, device := range c.Devices {
		identities = append(identities, session.Identity{Address: device.Address, Label: device.Label})
	}
	return identities
}

// SessionConfig returns the session settings for a run writing under root.
func (c *Config) SessionConfig(root string) session.Config {
	return session.Config{
		ServiceUUID:      c.ServiceUUID,
		NotifyUUID:       c.NotifyUUID,
		WriteUUID:        c.WriteUUID,
		OutputMode:       c.OutputMode,
		Rate:             c.Rate,
		CommandDelay:     c.CommandDelay,
		LivenessInterval: c.LivenessInterval,
		ConnectTimeout:   c.ConnectTimeout,
		OutputRoot:       root,
		Recorder: recorder.Options{
			Window:        c.Window,
			FlushInterval: c.FlushInterval,
		},
		Decoder: protocol.Decoder{UnsignedTicks: c.UnsignedTicks},
	}
}

// SupervisorOptions returns the supervisor settings for a run writing under root.
func (c *Config) SupervisorOptions(root string) supervisor.Options {
	return supervisor.Options{
		ScanTimeout: c.ScanTimeout,
		RetryJitter: c.RetryJitter,
		Session:     c.SessionConfig(root),
	}
}

// PrepareOutput creates and returns the directory this run writes to: a fresh run directory under
// OutputRoot if NewRunDir is set, otherwise OutputRoot itself.
func (c *Config) PrepareOutput() (string, error) {
	if err := os.MkdirAll(c.OutputRoot, 0755); err != nil {
		return "", &protocol.StorageError{Path: c.OutputRoot, Err: err}
	}
	if !c.NewRunDir {
		return c.OutputRoot, nil
	}
	dir, err := NextRunDir(c.OutputRoot, c.RunPrefix)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", &protocol.StorageError{Path: dir, Err: err}
	}
	return dir, nil
}

// NextRunDir returns root/<prefix>_<n> for the smallest n >= 1 that does not exist yet.
func NextRunDir(root, prefix string) (string, error) {
	for n := 1; ; n++ {
		dir := filepath.Join(root, prefix+"_"+strconv.Itoa(n))
		_, err := os.Stat(dir)
		if errors.Is(err, os.ErrNotExist) {
			return dir, nil
		}
		if err != nil {
			return "", &protocol.StorageError{Path: dir, Err: err}
		}
	}
}

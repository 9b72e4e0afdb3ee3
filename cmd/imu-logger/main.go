package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imu-telemetry/imu-logger/internal/log"
	"github.com/imu-telemetry/imu-logger/pkg/cli"
	"github.com/imu-telemetry/imu-logger/pkg/connector/ble"
	"github.com/imu-telemetry/imu-logger/pkg/connector/ble/goble"
	"github.com/imu-telemetry/imu-logger/pkg/protocol"
	"github.com/imu-telemetry/imu-logger/pkg/recorder"
	"github.com/imu-telemetry/imu-logger/pkg/session"
	"github.com/imu-telemetry/imu-logger/pkg/supervisor"
)

var rootCmd = &cobra.Command{
	Use:           "imu-logger",
	Short:         "record motion data from Bluetooth LE inertial sensors",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "connect to every configured sensor and record until interrupted",
	Long: `run connects to every configured sensor and records its readings until interrupted.
Sensors that are out of range or disconnect are retried after a random delay.
The configuration is read from the following locations, in order:
1. path specified in --config flag
2. path defined in the IMULOGGER_CONFIG environment variable
3. config.yaml in $HOME/.config/imu-logger, /etc/imu-logger, current directory
Values in the configuration file are overridden by environment variables (IMULOGGER_<KEY>), which
are overridden by command line flags.
`,
	Example: `  imu-logger run --config=/path/to/config.yaml
  imu-logger run -o /media/usb/imu --echo`,
	RunE: runSensors,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "create a configuration template",
	Long: `init creates a configuration template.
If --print is present, the configuration is printed to stdout.
Otherwise it is written to the path given by --output, or to $HOME/.config/imu-logger/config.yaml.
An existing file is only replaced if --yes is present.
`,
	Example: `  imu-logger init --print
  imu-logger init -o /etc/imu-logger/config.yaml -y`,
	RunE: writeTemplate,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "scan once for every configured sensor",
	Long: `probe scans for every configured sensor once and reports whether it was found and its
signal strength. No connection is made.
`,
	RunE: probeSensors,
}

func init() {
	cli.RegisterFlags(runCmd)
	runCmd.Flags().Bool("echo", false, "log every decoded reading")
	rootCmd.AddCommand(runCmd)

	initCmd.Flags().Bool("print", false, "print config to stdout")
	initCmd.Flags().BoolP("yes", "y", false, "overwrite an existing file")
	initCmd.Flags().StringP("output", "o", cli.DefaultConfigPath, "config `file` to write")
	rootCmd.AddCommand(initCmd)

	cli.RegisterFlags(probeCmd)
	rootCmd.AddCommand(probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("%s", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*cli.Config, error) {
	config, err := cli.Load(cmd)
	if err != nil {
		return nil, err
	}
	if config.Debug {
		log.SetLevel(log.LevelDebug)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.File != "" {
		log.Info("Using config file %s", config.File)
	}
	return config, nil
}

func runSensors(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	echo, _ := cmd.Flags().GetBool("echo")

	root, err := config.PrepareOutput()
	if err != nil {
		return err
	}
	adapter, err := goble.NewAdapter(config.Adapter)
	if err != nil {
		return err
	}
	defer func() {
		if err := adapter.Close(); err != nil {
			log.Warning("Failed to release Bluetooth adapter: %s", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	options := config.SupervisorOptions(root)
	if echo {
		options.Observe = func(identity session.Identity, reading protocol.Reading) {
			log.Info("[%s] %s", identity, recorder.FormatRow(reading))
		}
	}
	log.Info("Recording %d sensors to %s", len(config.Devices), root)
	supervisor.New(adapter, options).Run(ctx, config.Identities())
	log.Info("Stopped")
	return nil
}

func writeTemplate(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwrite, _ := cmd.Flags().GetBool("yes")

	template := cli.Template()
	if printFlag {
		buffer, err := template.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(buffer)
		return err
	}
	return template.WriteFile(outputPath, overwrite)
}

func probeSensors(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	adapter, err := goble.NewAdapter(config.Adapter)
	if err != nil {
		return err
	}
	defer adapter.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	for _, identity := range config.Identities() {
		beacon, err := ble.Scan(ctx, adapter, identity.Address, config.ScanTimeout)
		switch {
		case err == nil:
			fmt.Fprintf(out, "%-32s found  RSSI %d dBm  %s\n", identity, beacon.RSSI, beacon.LocalName)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			fmt.Fprintf(out, "%-32s absent (%s)\n", identity, err)
		}
	}
	return nil
}

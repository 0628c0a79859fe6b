package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/itohio/daqcore/pkg/config"
)

var (
	portName   string
	baudRate   int
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "daqctl",
	Short: "Data-acquisition board control tool",
	Long: `daqctl sends protocol commands to a board and prints its answers.

Connection:
  --port /dev/ttyACM0 [--baud 115200]

The image commands (crash, uptime, otp) read a flash image directly and need
no board. Geometry comes from --config.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device (default from the configuration)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (default from the configuration)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "daqsim.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and applies the connection flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if portName != "" {
		cfg.Serial.Port = portName
	}
	if baudRate != 0 {
		cfg.Serial.Baud = baudRate
	}
	return cfg, nil
}

func newLogger() *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{Prefix: "daqctl", Level: level})
}

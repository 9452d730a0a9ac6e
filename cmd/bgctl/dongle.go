package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bgapi/internal/serial"
	"github.com/srg/bgapi/pkg/adapter"
	"github.com/srg/bgapi/pkg/config"
)

// Global connection flags shared by every subcommand.
var (
	configPath string
	serialPort string
	serialBaud int
)

// loadConfig merges the config file with command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if serialPort != "" {
		cfg.Port = serialPort
	}
	if serialBaud != 0 {
		cfg.Baud = serialBaud
	}
	return cfg, nil
}

// openDongle opens the serial port and brings the adapter up. The caller
// must Stop the returned adapter.
func openDongle(logger *logrus.Logger) (*adapter.Adapter, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	port, err := serial.Open(&serial.Config{
		Device:      cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: serial.DefaultConfig(cfg.Port).ReadTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", cfg.Port, err)
	}

	a := adapter.NewAdapter(port, logger)
	if err := a.Start(); err != nil {
		a.Stop()
		return nil, nil, fmt.Errorf("initializing dongle: %w", err)
	}
	return a, cfg, nil
}

// withDongle runs fn against a started adapter and tears it down after.
func withDongle(cmd *cobra.Command, fn func(a *adapter.Adapter, cfg *config.Config, logger *logrus.Logger) error) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	a, cfg, err := openDongle(logger)
	if err != nil {
		return err
	}
	defer a.Stop()

	return fn(a, cfg, logger)
}

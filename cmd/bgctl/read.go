package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bgapi/pkg/adapter"
	"github.com/srg/bgapi/pkg/config"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> <handle>",
	Short: "Read an attribute value",
	Long: `Reads the value of the attribute at the given handle.

Handles are printed by the inspect command; read a characteristic's value
attribute handle, not its declaration handle.

Examples:
  # Read the attribute at handle 0x0021
  bgctl read 00:0b:57:17:2d:a0 0x0021

  # Output as hex
  bgctl read 00:0b:57:17:2d:a0 0x0021 --hex`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

var (
	readHex     bool
	readTimeout time.Duration
	readVerbose bool
)

func init() {
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string (e.g., 'FF01'); raw bytes by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 5*time.Second, "Read timeout")
	readCmd.Flags().BoolVar(&readVerbose, "verbose", false, "Verbose output")
}

// parseHandle accepts decimal and 0x-prefixed hex attribute handles.
func parseHandle(s string) (uint16, error) {
	var handle uint16
	if _, err := fmt.Sscanf(s, "0x%x", &handle); err == nil {
		return handle, nil
	}
	if _, err := fmt.Sscanf(s, "%d", &handle); err == nil {
		return handle, nil
	}
	return 0, fmt.Errorf("invalid attribute handle %q", s)
}

func runRead(cmd *cobra.Command, args []string) error {
	address := args[0]
	handle, err := parseHandle(args[1])
	if err != nil {
		return err
	}

	return withDongle(cmd, func(a *adapter.Adapter, cfg *config.Config, logger *logrus.Logger) error {
		if err := a.Connect(address, adapter.ConnectOptions{Timeout: cfg.ConnectTimeout}); err != nil {
			return err
		}
		defer a.Disconnect(true)

		data, err := a.AttributeRead(handle, readTimeout)
		if err != nil {
			return err
		}
		return outputData(data)
	})
}

// outputData formats and outputs data according to flags
func outputData(data []byte) error {
	if readHex {
		// Hex output
		fmt.Println(hex.EncodeToString(data))
		return nil
	}

	// Default: Raw binary output to stdout
	_, err := os.Stdout.Write(data)
	return err
}

package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bgapi/pkg/adapter"
	"github.com/srg/bgapi/pkg/config"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <handle> <data>",
	Short: "Write a value to an attribute",
	Long: `Writes data to the attribute at the given handle and waits for the
remote acknowledgement.

Data is UTF-8 text by default; pass --hex to write raw bytes.

Examples:
  # Write text
  bgctl write 00:0b:57:17:2d:a0 0x0021 hello

  # Write raw bytes
  bgctl write 00:0b:57:17:2d:a0 0x0021 01ff00 --hex`,
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

var (
	writeHex     bool
	writeTimeout time.Duration
	writeVerbose bool
)

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Interpret data as a hex string")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 5*time.Second, "Write timeout")
	writeCmd.Flags().BoolVar(&writeVerbose, "verbose", false, "Verbose output")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address := args[0]
	handle, err := parseHandle(args[1])
	if err != nil {
		return err
	}

	var data []byte
	if writeHex {
		cleaned := strings.ReplaceAll(args[2], " ", "")
		data, err = hex.DecodeString(cleaned)
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}
	} else {
		data = []byte(args[2])
	}
	if len(data) == 0 {
		return fmt.Errorf("no data to write")
	}

	return withDongle(cmd, func(a *adapter.Adapter, cfg *config.Config, logger *logrus.Logger) error {
		if err := a.Connect(address, adapter.ConnectOptions{Timeout: cfg.ConnectTimeout}); err != nil {
			return err
		}
		defer a.Disconnect(true)

		if err := a.AttributeWrite(handle, data, writeTimeout); err != nil {
			return err
		}
		fmt.Printf("Wrote %d byte(s) to 0x%04x\n", len(data), handle)
		return nil
	})
}

package main

import (
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bgctl",
	Short: "BGAPI BLE dongle CLI tool",
	Long: `Command-line tool for Bluetooth Low Energy dongles speaking the BGAPI
serial protocol (BLED112 and compatible):

- Scan and discover nearby BLE devices
- Inspect GATT services, characteristics, and descriptors
- Read from and write to attributes by handle
- Monitor characteristic changes via notifications
- Manage bonds stored on the dongle

Ideal for firmware development, automated testing, and BLE protocol
exploration without an OS Bluetooth stack.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(rssiCmd)
	rootCmd.AddCommand(bondsCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&serialPort, "port", "p", "", "Serial port of the dongle")
	rootCmd.PersistentFlags().IntVar(&serialBaud, "baud", 0, "Serial baud rate")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}

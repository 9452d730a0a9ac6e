package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bgapi/pkg/adapter"
	"github.com/srg/bgapi/pkg/config"
)

// rssiCmd represents the rssi command
var rssiCmd = &cobra.Command{
	Use:   "rssi <device-address>",
	Short: "Report the signal strength of a device",
	Long: `Connects to a device and prints the received signal strength of the
link in dBm.

Example:
  bgctl rssi 00:0b:57:17:2d:a0`,
	Args: cobra.ExactArgs(1),
	RunE: runRSSI,
}

var rssiVerbose bool

func init() {
	rssiCmd.Flags().BoolVar(&rssiVerbose, "verbose", false, "Verbose output")
}

func runRSSI(cmd *cobra.Command, args []string) error {
	address := args[0]

	return withDongle(cmd, func(a *adapter.Adapter, cfg *config.Config, logger *logrus.Logger) error {
		if err := a.Connect(address, adapter.ConnectOptions{Timeout: cfg.ConnectTimeout}); err != nil {
			return err
		}
		defer a.Disconnect(true)

		rssi, err := a.RSSI()
		if err != nil {
			return err
		}
		fmt.Printf("%d dBm\n", rssi)
		return nil
	})
}

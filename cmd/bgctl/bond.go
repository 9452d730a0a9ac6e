package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bgapi/pkg/adapter"
	"github.com/srg/bgapi/pkg/config"
)

// bondCmd represents the bond command
var bondCmd = &cobra.Command{
	Use:   "bond <device-address>",
	Short: "Pair with a device",
	Long: `Connects to a device, creates a bond and enables encryption on the
link. The bond is stored on the dongle and survives power cycles; use
the bonds command to list or delete it.

Example:
  bgctl bond 00:0b:57:17:2d:a0`,
	Args: cobra.ExactArgs(1),
	RunE: runBond,
}

var (
	bondTimeout time.Duration
	bondVerbose bool
)

func init() {
	rootCmd.AddCommand(bondCmd)
	bondCmd.Flags().DurationVar(&bondTimeout, "timeout", 15*time.Second, "Bonding timeout")
	bondCmd.Flags().BoolVar(&bondVerbose, "verbose", false, "Verbose output")
}

func runBond(cmd *cobra.Command, args []string) error {
	address := args[0]

	return withDongle(cmd, func(a *adapter.Adapter, cfg *config.Config, logger *logrus.Logger) error {
		if err := a.Connect(address, adapter.ConnectOptions{Timeout: cfg.ConnectTimeout}); err != nil {
			return err
		}
		defer a.Disconnect(true)

		if err := a.Bond(bondTimeout); err != nil {
			return err
		}
		fmt.Printf("Bonded with %s (encrypted: %v)\n", address, a.Encrypted())
		return nil
	})
}

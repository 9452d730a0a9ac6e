package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bgapi/internal/gatt"
	"github.com/srg/bgapi/pkg/adapter"
	"github.com/srg/bgapi/pkg/config"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <characteristic-uuid>",
	Short: "Subscribe to characteristic notifications",
	Long: `Enables notifications on a characteristic and prints each value the
device pushes until interrupted with Ctrl+C.

The characteristic is looked up by UUID in the device's attribute table,
so the first notification may take a moment while discovery runs.

Example:
  bgctl subscribe 00:0b:57:17:2d:a0 2a37 --hex`,
	Args: cobra.ExactArgs(2),
	RunE: runSubscribe,
}

var (
	subscribeHex     bool
	subscribeTimeout time.Duration
	subscribeVerbose bool
)

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output values as hex strings")
	subscribeCmd.Flags().DurationVar(&subscribeTimeout, "timeout", 30*time.Second, "Discovery timeout")
	subscribeCmd.Flags().BoolVar(&subscribeVerbose, "verbose", false, "Verbose output")
}

// findCharacteristic looks a characteristic up by its normalized UUID.
func findCharacteristic(services []*gatt.Service, uuid gatt.UUID) *gatt.Characteristic {
	for _, svc := range services {
		for _, ch := range svc.Characteristics {
			if ch.UUID == uuid {
				return ch
			}
		}
	}
	return nil
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address := args[0]
	uuid := gatt.NormalizeUUID(args[1])

	return withDongle(cmd, func(a *adapter.Adapter, cfg *config.Config, logger *logrus.Logger) error {
		if err := a.Connect(address, adapter.ConnectOptions{Timeout: cfg.ConnectTimeout}); err != nil {
			return err
		}
		defer a.Disconnect(true)

		services, err := a.DiscoverAttributes(subscribeTimeout)
		if err != nil {
			return err
		}
		char := findCharacteristic(services, uuid)
		if char == nil {
			return fmt.Errorf("characteristic %s not found on %s", uuid, address)
		}

		values := make(chan []byte, 16)
		err = a.Subscribe(char, func(handle uint16, value []byte) {
			values <- value
		}, false)
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "Subscribed. Press Ctrl+C to stop...")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		for {
			select {
			case v := <-values:
				if subscribeHex {
					fmt.Println(hex.EncodeToString(v))
				} else {
					os.Stdout.Write(v)
				}
			case <-sigCh:
				fmt.Fprintln(os.Stderr, "\nUnsubscribing...")
				return a.Unsubscribe(char)
			}
		}
	})
}

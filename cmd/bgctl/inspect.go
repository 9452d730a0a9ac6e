package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bgapi/internal/gatt"
	"github.com/srg/bgapi/pkg/adapter"
	"github.com/srg/bgapi/pkg/config"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect the GATT database of a device",
	Long: `Connect to a device and walk its attribute table, printing the
services, characteristics and descriptors it exposes with their handles.

Example:
  bgctl inspect 00:0b:57:17:2d:a0`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectTimeout time.Duration
	inspectVerbose bool
)

func init() {
	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 30*time.Second, "Discovery timeout")
	inspectCmd.Flags().BoolVar(&inspectVerbose, "verbose", false, "Verbose output")
}

func runInspect(cmd *cobra.Command, args []string) error {
	address := args[0]

	return withDongle(cmd, func(a *adapter.Adapter, cfg *config.Config, logger *logrus.Logger) error {
		if err := a.Connect(address, adapter.ConnectOptions{Timeout: cfg.ConnectTimeout}); err != nil {
			return err
		}
		defer a.Disconnect(true)

		services, err := a.DiscoverAttributes(inspectTimeout)
		if err != nil {
			return err
		}
		printServices(services)
		return nil
	})
}

func printServices(services []*gatt.Service) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	for _, svc := range services {
		kind := "service"
		if svc.Secondary {
			kind = "secondary service"
		}
		cyan.Printf("%s %s", kind, svc.UUID)
		faint.Printf("  [0x%04x]\n", svc.Handle)

		for _, ch := range svc.Characteristics {
			label := string(ch.UUID)
			if ch.KnownType != "" {
				label = fmt.Sprintf("%s (%s)", ch.UUID, ch.KnownType)
			}
			if ch.Custom {
				yellow.Printf("  char %s", label)
			} else {
				fmt.Printf("  char %s", label)
			}
			faint.Printf("  [0x%04x]\n", ch.Handle)

			for _, d := range ch.Descriptors {
				fmt.Printf("    desc %s (%s)", d.UUID, d.Type)
				faint.Printf("  [0x%04x]\n", d.Handle)
			}
		}
	}
}

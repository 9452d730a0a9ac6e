package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bgapi/pkg/adapter"
	"github.com/srg/bgapi/pkg/config"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

This command will scan for BLE devices and display information about
discovered devices, including their names, addresses, RSSI values, and
parsed advertisement data.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanPassive  bool
	scanVerbose  bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanPassive, "passive", false, "Passive scan (no scan requests)")
	scanCmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Verbose output")
}

func runScan(cmd *cobra.Command, args []string) error {
	// Validate format parameter
	validFormats := []string{"table", "json"}
	isValidFormat := false
	for _, format := range validFormats {
		if scanFormat == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format '%s': must be one of %v", scanFormat, validFormats)
	}

	return withDongle(cmd, func(a *adapter.Adapter, cfg *config.Config, logger *logrus.Logger) error {
		duration := cfg.ScanDuration
		if scanDuration > 0 {
			duration = scanDuration
		}

		fmt.Fprintf(os.Stderr, "Scanning for %v...\n", duration)
		devices, err := a.Scan(adapter.ScanOptions{
			Active:   !scanPassive,
			Duration: duration,
		})
		if err != nil {
			logger.WithError(err).Error("scan failed")
			return err
		}

		switch scanFormat {
		case "json":
			return displayDevicesJSON(devices)
		default:
			return displayDevicesTable(devices)
		}
	})
}

func displayDevicesTable(devices []*adapter.Device) error {
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	// Sort by RSSI, strongest first
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].RSSI > devices[j].RSSI
	})

	var base io.Writer = os.Stdout
	w := tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tADVERTISED")
	fmt.Fprintln(w, strings.Repeat("-", 70))

	for _, dev := range devices {
		name := dev.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		fields := advertisedSummary(dev)
		if len(fields) > 40 {
			fields = fields[:37] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, dev.Address, dev.RSSI, fields)
	}

	return w.Flush()
}

// advertisedSummary lists the AD field names seen across the device's
// packets, deduplicated and sorted.
func advertisedSummary(dev *adapter.Device) string {
	seen := make(map[string]struct{})
	for _, fields := range dev.PacketData {
		for name := range fields {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func displayDevicesJSON(devices []*adapter.Device) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bgapi/pkg/adapter"
	"github.com/srg/bgapi/pkg/config"
)

// bondsCmd represents the bonds command and its subcommands
var bondsCmd = &cobra.Command{
	Use:   "bonds",
	Short: "Manage bonds stored on the dongle",
	Long: `List and delete the pairing bonds the dongle keeps in its own flash.

Examples:
  bgctl bonds list
  bgctl bonds clear 0
  bgctl bonds clear --all`,
}

var bondsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored bonds",
	RunE:  runBondsList,
}

var bondsClearCmd = &cobra.Command{
	Use:   "clear [bond-handle]",
	Short: "Delete a stored bond, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBondsClear,
}

var (
	bondsClearAll bool
	bondsVerbose  bool
)

func init() {
	bondsCmd.AddCommand(bondsListCmd)
	bondsCmd.AddCommand(bondsClearCmd)
	bondsCmd.PersistentFlags().BoolVar(&bondsVerbose, "verbose", false, "Verbose output")
	bondsClearCmd.Flags().BoolVar(&bondsClearAll, "all", false, "Delete every stored bond")
}

func runBondsList(cmd *cobra.Command, args []string) error {
	return withDongle(cmd, func(a *adapter.Adapter, cfg *config.Config, logger *logrus.Logger) error {
		bonds, err := a.ListBonds()
		if err != nil {
			return err
		}
		if len(bonds) == 0 {
			fmt.Println("No bonds stored")
			return nil
		}
		for _, b := range bonds {
			fmt.Printf("bond %d\n", b)
		}
		return nil
	})
}

func runBondsClear(cmd *cobra.Command, args []string) error {
	if bondsClearAll == (len(args) == 1) {
		return fmt.Errorf("pass either a bond handle or --all")
	}

	return withDongle(cmd, func(a *adapter.Adapter, cfg *config.Config, logger *logrus.Logger) error {
		if bondsClearAll {
			if err := a.ClearAllBonds(); err != nil {
				return err
			}
			fmt.Println("All bonds cleared")
			return nil
		}

		handle, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid bond handle %q", args[0])
		}
		if err := a.ClearBond(uint8(handle)); err != nil {
			return err
		}
		fmt.Printf("Bond %d cleared\n", handle)
		return nil
	})
}

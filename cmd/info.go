/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/allbin/serialscope"
	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <device>",
	Short: "Show detailed information about a serial device",
	Long: `Show detailed information about a specific serial device.

For USB devices this includes vendor/product IDs, the serial number and
the USB bus/device numbers read from sysfs.

Examples:
  serialscope info /dev/ttyUSB0
  serialscope info /dev/ttyACM0`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		device := args[0]

		info, err := serialscope.GetPortInfo(device)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Device:       %s\n", info.Path)
		fmt.Printf("Description:  %s\n", info.Description)
		if info.VendorID != "" {
			fmt.Printf("Vendor ID:    %s\n", info.VendorID)
			fmt.Printf("Product ID:   %s\n", info.ProductID)
		}
		if info.SerialNumber != "" {
			fmt.Printf("Serial:       %s\n", info.SerialNumber)
		}
		if info.BusNumber != "" {
			fmt.Printf("USB Bus:      %s\n", info.BusNumber)
			fmt.Printf("USB Device:   %s\n", info.DeviceNumber)
		}

		if baud := lastUsedBaud(device, 0); baud > 0 {
			fmt.Printf("Last baud:    %d\n", baud)
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

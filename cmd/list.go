/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/allbin/serialscope"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial devices",
	Long: `List all available serial devices on the system.

This command scans for communication-capable serial devices including:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)
- And other platform-specific serial devices

Virtual terminals and pseudo-terminals are excluded from the listing.`,
	Run: func(cmd *cobra.Command, args []string) {
		devices, err := serialscope.Scan()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing devices: %v\n", err)
			os.Exit(1)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		filtered := filterDevices(devices, filterType)
		if len(filtered) == 0 {
			if filterType != "" {
				fmt.Printf("No serial devices found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial devices found")
			}
			return
		}

		if tableFormat {
			renderDeviceTable(filtered)
		} else {
			renderDeviceList(filtered)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by device type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// filterDevices filters the device list based on the specified type
func filterDevices(devices []string, filterType string) []string {
	if filterType == "" || filterType == "all" {
		return devices
	}

	var filtered []string
	for _, device := range devices {
		info, err := serialscope.GetPortInfo(device)
		if err != nil {
			continue
		}

		name := strings.ToLower(info.Name)
		switch strings.ToLower(filterType) {
		case "usb":
			if strings.HasPrefix(name, "ttyusb") || strings.HasPrefix(name, "ttyacm") {
				filtered = append(filtered, device)
			}
		case "standard":
			if strings.HasPrefix(name, "ttys") {
				filtered = append(filtered, device)
			}
		case "arm":
			if strings.HasPrefix(name, "ttyama") {
				filtered = append(filtered, device)
			}
		}
	}
	return filtered
}

// renderDeviceList prints a simple one-per-line listing
func renderDeviceList(devices []string) {
	fmt.Printf("Found %d serial device(s):\n\n", len(devices))

	for _, device := range devices {
		info, err := serialscope.GetPortInfo(device)
		if err != nil {
			fmt.Println(device)
			continue
		}

		line := fmt.Sprintf("%s  %s", device, info.Description)
		if info.SerialNumber != "" {
			line += fmt.Sprintf("  (serial: %s)", info.SerialNumber)
		}
		fmt.Println(line)
	}
}

// renderDeviceTable prints a styled table with USB metadata
func renderDeviceTable(devices []string) {
	fmt.Printf("Found %d serial device(s):\n\n", len(devices))

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99"))

	rowStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	header := fmt.Sprintf("%-15s %-25s %-10s %-10s %-15s",
		"Device", "Description", "VID", "PID", "Serial")
	fmt.Println(headerStyle.Render(header))
	fmt.Println(headerStyle.Render(strings.Repeat("─", len(header))))

	for _, device := range devices {
		info, err := serialscope.GetPortInfo(device)
		if err != nil {
			continue
		}

		row := fmt.Sprintf("%-15s %-25s %-10s %-10s %-15s",
			info.Name,
			truncate(info.Description, 25),
			orDash(info.VendorID),
			orDash(info.ProductID),
			orDash(info.SerialNumber))
		fmt.Println(rowStyle.Render(row))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

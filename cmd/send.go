/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/allbin/serialscope"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <device>",
	Short: "Send data to a serial device",
	Long: `Send data to a serial device with configurable options.

Data can be provided as:
- Command line argument: send "Hello World" /dev/ttyUSB0
- From stdin (pipe): echo "test data" | serialscope send /dev/ttyUSB0
- Interactive mode: serialscope send /dev/ttyUSB0 (prompts for input)

Example usage:
  serialscope send "Hello World" /dev/ttyUSB0
  serialscope send "AT+GMR" /dev/ttyUSB0 --newline
  serialscope send "48656C6C6F" /dev/ttyUSB0 --hex
  echo "test" | serialscope send /dev/ttyUSB0`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var data string
		var device string

		// Either "send data device" or "send device"
		if len(args) == 1 {
			device = args[0]
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				data = promptForData()
			} else {
				stdinData, err := io.ReadAll(os.Stdin)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error reading from stdin: %v\n", err)
					os.Exit(1)
				}
				data = strings.TrimRight(string(stdinData), "\r\n")
			}
		} else {
			data = args[0]
			device = args[1]
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")

		var payload []byte
		if hexMode {
			parsed, err := parseHexInput(data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid hex data: %v\n", err)
				os.Exit(1)
			}
			payload = parsed
		} else {
			if addNewline {
				data += "\n"
			}
			payload = []byte(data)
		}

		if err := sendData(device, payload, resolveBaud(cmd, device)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().IntP("baud", "b", 115200, "Baud rate")
	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
}

func promptForData() string {
	promptStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99"))

	fmt.Print(promptStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

// parseHexInput converts hex strings to bytes. Supports both:
// - Space-separated: "48 65 6C 6C 6F"
// - Continuous: "48656C6C6F"
func parseHexInput(hexStr string) ([]byte, error) {
	cleanHex := strings.ReplaceAll(strings.TrimSpace(hexStr), " ", "")
	cleanHex = strings.TrimPrefix(cleanHex, "0x")
	cleanHex = strings.TrimPrefix(cleanHex, "0X")
	if len(cleanHex) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	if len(cleanHex)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even number of digits (got %d)", len(cleanHex))
	}

	out := make([]byte, 0, len(cleanHex)/2)
	for i := 0; i < len(cleanHex); i += 2 {
		b, err := strconv.ParseUint(cleanHex[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte '%s': %v", cleanHex[i:i+2], err)
		}
		out = append(out, byte(b))
	}
	return out, nil
}

func sendData(device string, payload []byte, baudRate int) error {
	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("40")).
		Bold(true)

	fmt.Printf("%s Opening %s at %d baud...\n", infoStyle.Render("⚡"), device, baudRate)

	registry := serialscope.NewPortRegistry(serialscope.WithLogger(newLogger()))
	err := registry.Open(context.Background(), device,
		serialscope.WithBaudRate(baudRate),
		serialscope.WithoutQualityAnalysis(),
	)
	if err != nil {
		return err
	}
	defer registry.CloseAll(context.Background())

	n, err := registry.Send(device, payload)
	if err != nil {
		return fmt.Errorf("failed to send data: %w", err)
	}

	fmt.Printf("%s Successfully sent %d bytes\n", successStyle.Render("✓"), n)

	// Preview with non-printable characters dotted out
	preview := strings.Map(func(r rune) rune {
		if r < 32 || r > 126 {
			return '·'
		}
		return r
	}, string(payload))
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	fmt.Printf("%s Data: %s\n", infoStyle.Render("→"), preview)

	return nil
}

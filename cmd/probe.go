/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allbin/serialscope"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe <device>",
	Short: "Probe a device for its baud rate",
	Long: `Sweep common baud rates and rank them by how plausible the received
data looks at each speed.

Each candidate gets a short trial connection; the collected bytes are
scored on printable-character ratio and recognizable textual patterns.
The device must emit data on its own for probing to work - a silent
device yields "insufficient data" at every speed.

With --validate the configured speed is tested first and alternatives
are only swept when it looks wrong.

Examples:
  serialscope probe /dev/ttyUSB0
  serialscope probe /dev/ttyUSB0 --duration 5s
  serialscope probe /dev/ttyUSB0 --validate --baud 115200
  serialscope probe /dev/ttyUSB0 --save`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		device := args[0]

		duration, _ := cmd.Flags().GetDuration("duration")
		validate, _ := cmd.Flags().GetBool("validate")
		save, _ := cmd.Flags().GetBool("save")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			fmt.Fprintln(os.Stderr, "\nAborting probe...")
			cancel()
		}()

		prober := serialscope.NewProber(serialscope.DefaultProbeConfig(), newLogger())

		if validate {
			runValidate(ctx, prober, device, resolveBaud(cmd, device), duration, save)
			return
		}

		fmt.Printf("Probing %s (%s per candidate)...\n\n", device, duration)

		results, err := prober.ProbeBest(ctx, device, duration)
		if err != nil && len(results) == 0 {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		renderProbeResults(results)

		if save && len(results) > 0 && results[0].Confidence > 0 {
			rememberBaud(device, results[0].BaudRate)
			fmt.Printf("\nSaved %d baud as default for %s\n", results[0].BaudRate, device)
		}
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().DurationP("duration", "d", 2*time.Second, "Collection window per candidate")
	probeCmd.Flags().Bool("validate", false, "Validate the configured speed instead of a full sweep")
	probeCmd.Flags().IntP("baud", "b", 115200, "Baud rate to validate (with --validate)")
	probeCmd.Flags().Bool("save", false, "Remember the best speed for this device")
}

func runValidate(ctx context.Context, prober *serialscope.Prober, device string, baud int, duration time.Duration, save bool) {
	fmt.Printf("Validating %d baud on %s...\n\n", baud, device)

	report, err := prober.Validate(ctx, device, baud, duration)
	if err != nil && report == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("40")).Bold(true)
	badStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	if report.Acceptable {
		fmt.Printf("%s %d baud looks correct (confidence %.2f, %s)\n",
			okStyle.Render("✓"), baud, report.Result.Confidence, report.Result.Reason)
		if save {
			rememberBaud(device, baud)
		}
		return
	}

	fmt.Printf("%s %d baud looks wrong (confidence %.2f, %s)\n",
		badStyle.Render("✗"), baud, report.Result.Confidence, report.Result.Reason)

	if len(report.Alternatives) == 0 {
		fmt.Println("\nNo better candidates found")
		return
	}

	fmt.Println("\nSuggested alternatives:")
	renderProbeResults(report.Alternatives)

	if save {
		rememberBaud(device, report.Alternatives[0].BaudRate)
		fmt.Printf("\nSaved %d baud as default for %s\n", report.Alternatives[0].BaudRate, device)
	}
}

// renderProbeResults prints the ranked candidate table
func renderProbeResults(results []serialscope.CandidateResult) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-10s %-12s %-10s %s",
		"Baud", "Confidence", "Bytes", "Assessment")))

	for _, result := range results {
		bar := confidenceBar(result.Confidence)
		fmt.Printf("%-10d %-12s %-10d %s\n",
			result.BaudRate, bar, result.TotalBytes, result.Reason)
	}
}

// confidenceBar renders a small colored gauge for a confidence value
func confidenceBar(confidence float64) string {
	filled := int(confidence * 8)
	bar := ""
	for i := 0; i < 8; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}

	var color string
	switch {
	case confidence >= 0.7:
		color = "40" // green
	case confidence >= 0.3:
		color = "220" // yellow
	default:
		color = "196" // red
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(bar)
}

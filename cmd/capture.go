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
	"github.com/spf13/cobra"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <device>",
	Short: "Capture serial data to a session log file",
	Long: `Capture incoming serial data to a timestamped session log file.

Each capture creates a new log file in the log directory, named after the
device and the session start time. Records are batched in memory and
flushed in the background, so capture keeps up with chatty devices.

Incoming data passes through quality analysis by default: garbage chunks
are dropped from the log and a warning is printed when the data suggests
a wrong baud rate. Use --no-quality to log everything verbatim.

Runs continuously until interrupted (Ctrl+C).

Example usage:
  serialscope capture /dev/ttyUSB0
  serialscope capture /dev/ttyUSB0 --baud 9600 --log-dir ./logs
  serialscope capture /dev/ttyUSB0 --console --reconnect
  serialscope capture /dev/ttyUSB0 --no-quality`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		device := args[0]

		logDir, _ := cmd.Flags().GetString("log-dir")
		noQuality, _ := cmd.Flags().GetBool("no-quality")
		reconnect, _ := cmd.Flags().GetBool("reconnect")
		showConsole, _ := cmd.Flags().GetBool("console")

		if err := runCapture(device, resolveBaud(cmd, device), logDir, noQuality, reconnect, showConsole); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().IntP("baud", "b", 115200, "Baud rate")
	captureCmd.Flags().StringP("log-dir", "o", ".", "Directory for session log files")
	captureCmd.Flags().Bool("no-quality", false, "Disable quality analysis, log raw data")
	captureCmd.Flags().Bool("reconnect", false, "Reconnect automatically after unexpected disconnects")
	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
}

func runCapture(device string, baudRate int, logDir string, noQuality, reconnect, showConsole bool) error {
	logger := newLogger()

	writerCfg := serialscope.DefaultWriterConfig()
	writerCfg.Dir = logDir
	writer := serialscope.NewBatchedLogWriter(writerCfg, logger)

	registry := serialscope.NewPortRegistry(
		serialscope.WithLogger(logger),
		serialscope.WithLogWriter(writer),
	)

	opts := []serialscope.Option{
		serialscope.WithBaudRate(baudRate),
	}
	if noQuality {
		opts = append(opts, serialscope.WithoutQualityAnalysis())
	}
	if reconnect {
		opts = append(opts, serialscope.WithAutoReconnect(2*time.Second, 10))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, shutting down...\n")
		cancel()
	}()

	if err := registry.Open(ctx, device, opts...); err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer registry.CloseAll(context.Background())
	rememberBaud(device, baudRate)

	fmt.Fprintf(os.Stderr, "Capturing data from %s at %d baud\n", device, baudRate)
	fmt.Fprintf(os.Stderr, "Logging to %s\n", writer.FilePath(device))
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			stats, err := registry.Statistics(device)
			if err == nil {
				duration := time.Since(startTime)
				fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes in %d messages over %v\n",
					stats.ReceivedBytes, stats.ReceivedMessages, duration.Round(time.Millisecond))
			}
			return nil

		case <-ticker.C:
			stats, err := registry.Statistics(device)
			if err != nil {
				continue
			}
			fmt.Fprintf(os.Stderr, "... %d bytes, %d messages, %d errors\n",
				stats.ReceivedBytes, stats.ReceivedMessages, stats.ErrorCount)

		case event := <-registry.Events():
			switch e := event.(type) {
			case serialscope.DataEvent:
				if showConsole {
					os.Stdout.Write(e.Bytes)
				}
			case serialscope.StateEvent:
				fmt.Fprintf(os.Stderr, "[%s] %s\n", e.Device, e.NewState)
			case serialscope.ErrorEvent:
				fmt.Fprintf(os.Stderr, "[%s] error: %s\n", e.Device, e.Message)
				if !reconnect {
					cancel()
				}
			case serialscope.RateProbeEvent:
				fmt.Fprintf(os.Stderr, "[%s] %s at %d baud - try 'serialscope probe %s'\n",
					e.Device, e.Reason, e.CurrentBaud, e.Device)
			}
		}
	}
}

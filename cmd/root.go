/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serialscope",
	Short: "Monitor serial devices with data quality analysis",
	Long: `serialscope watches hardware over serial lines.

Each device gets a managed session: received data is scored for
plausibility so line noise and wrong-speed garbage are flagged instead
of silently polluting the stream, sessions reconnect after link flaps,
and everything is persisted to per-session log files.

Common workflows:
  serialscope list --table            # discover devices
  serialscope probe /dev/ttyUSB0      # find the right baud rate
  serialscope watch /dev/ttyUSB0      # interactive monitoring TUI
  serialscope capture /dev/ttyUSB0    # headless logging`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.serialscope.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging to stderr")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".serialscope")
	}

	viper.SetEnvPrefix("serialscope")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the CLI logger; debug only with --verbose
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// deviceKey turns a device path into a config key segment
func deviceKey(device string) string {
	return strings.ReplaceAll(filepath.Base(device), ".", "_")
}

// lastUsedBaud returns the remembered baud rate for a device, or the
// fallback when none is stored
func lastUsedBaud(device string, fallback int) int {
	if baud := viper.GetInt("devices." + deviceKey(device) + ".baud"); baud > 0 {
		return baud
	}
	return fallback
}

// resolveBaud picks the baud rate for a command: an explicit --baud flag
// wins, then the remembered per-device rate, then the flag default
func resolveBaud(cmd *cobra.Command, device string) int {
	baud, _ := cmd.Flags().GetInt("baud")
	if cmd.Flags().Changed("baud") {
		return baud
	}
	return lastUsedBaud(device, baud)
}

// rememberBaud persists the baud rate a device was last used with, so
// the next watch/capture session picks it up automatically
func rememberBaud(device string, baud int) {
	viper.Set("devices."+deviceKey(device)+".baud", baud)

	if err := viper.WriteConfig(); err != nil {
		// First run: no config file yet
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return
		}
		_ = viper.WriteConfigAs(filepath.Join(home, ".serialscope.yaml"))
	}
}

// Package cmd provides the command-line interface for ChatTrain.
//
// Configuration sources, highest priority first:
//  1. Command-line flags (--config, --port)
//  2. CHATTRAIN_CONFIG_FILE environment variable
//  3. Individual environment variables (CHATTRAIN_SERVER_PORT, ...)
//  4. Configuration file (.chattrain.yml in the current directory)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chattrain",
	Short: "Secure real-time conversational training server",
	Long: `ChatTrain hosts scenario-based conversational training sessions over
WebSocket, with a security pipeline in front of every message: per-user
rate limiting, input validation and sanitization, model safety checks,
and sensitive-data masking.

Quick Start:
  chattrain serve                 Start the server
  chattrain check                 Validate config and scenarios
  chattrain version               Show version information`,
}

// Execute runs the root command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .chattrain.yml, can also use CHATTRAIN_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	if err := viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintln(os.Stderr, "flag binding failed:", err)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("CHATTRAIN_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".chattrain")
	}

	viper.SetEnvPrefix("CHATTRAIN")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

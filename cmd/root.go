package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lusia-studio/cli/config"
	"github.com/lusia-studio/cli/internal/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lusia",
	Short: "The CLI for the LUSIA Studio platform",
	Long: `A command-line client for the LUSIA Studio education platform.
Stream AI chat responses, upload study documents and track their
processing pipeline from the terminal.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to the LUSIA Studio CLI!")
		fmt.Println("Use 'lusia chat' to talk to the assistant or --help to see available commands.")
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", fmt.Sprintf("config file (default is %s)", config.DefaultConfigPath))
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	logger.Init(verbose)

	configPath, _ := rootCmd.PersistentFlags().GetString("config")

	loaded, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "minehold",
	Short: "Process supervisor for Minecraft-family servers",
	Long: `minehold supervises Minecraft-family server processes: it spawns them,
watches their console output, classifies it into typed events (joins,
chat, deaths, crashes) and restarts crashed servers with bounded backoff.

Examples:
  minehold serve                     # Start the daemon
  minehold tui                       # Interactive dashboard (daemon must be running)
  minehold create --name lobby --kind paper
  minehold list                      # Show registered servers
  minehold check-config              # Validate the config file`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		serveCmd.Run(cmd, args)
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
}

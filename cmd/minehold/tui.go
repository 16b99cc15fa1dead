package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/minehold/minehold/internal/config"
	"github.com/minehold/minehold/internal/tui"
)

var tuiAddr string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal dashboard",
	Long: `Connect to a running daemon and show a live dashboard: server table,
console streams and keyboard-driven control.`,
	Run: runTUI,
}

func init() {
	tuiCmd.Flags().StringVar(&tuiAddr, "addr", "", "Daemon websocket address (default: ws://localhost:<metrics_port>/ws)")
}

func runTUI(cmd *cobra.Command, args []string) {
	url := tuiAddr
	if url == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		url = fmt.Sprintf("ws://localhost:%d/ws", cfg.Global.MetricsPort)
	}

	if err := tui.Run(url); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/minehold/minehold/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration file",
	Long:  `Load and validate the configuration file, then print a summary.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("configuration OK")
		fmt.Printf("  data_dir:          %s\n", cfg.Global.DataDir)
		fmt.Printf("  servers_dir:       %s\n", cfg.Global.ServersDir)
		fmt.Printf("  java:              %s\n", cfg.Global.JavaPath)
		fmt.Printf("  readiness_timeout: %ds\n", cfg.Global.ReadinessTimeout)
		fmt.Printf("  stop_timeout:      %ds\n", cfg.Global.StopTimeout)
		fmt.Printf("  restart policy:    %d attempts, %ds backoff (cap %ds)\n",
			cfg.Global.MaxRestartAttempts, cfg.Global.RestartBackoff, cfg.Global.RestartBackoffMax)
		fmt.Printf("  metrics:           enabled=%v port=%d\n", cfg.Global.MetricsEnabled, cfg.Global.MetricsPort)
		fmt.Printf("  relay:             enabled=%v\n", cfg.Relay.Enabled)
		fmt.Printf("  alerts:            enabled=%v\n", cfg.Alerts.Enabled)
		fmt.Printf("  tracing:           enabled=%v exporter=%s\n", cfg.Tracing.Enabled, cfg.Tracing.Exporter)

		kinds := make([]string, 0, len(cfg.Kinds))
		for name := range cfg.Kinds {
			kinds = append(kinds, name)
		}
		sort.Strings(kinds)
		fmt.Printf("  kinds:             %v\n", kinds)
	},
}

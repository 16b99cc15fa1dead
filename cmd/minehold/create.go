package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/minehold/minehold/internal/config"
	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/logger"
	"github.com/minehold/minehold/internal/server"
	"github.com/minehold/minehold/internal/store"
)

var createParams server.CreateParams

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new server definition",
	Long: `Register a new server definition in the database and provision its
working directory. Run while the daemon is stopped; it picks up new
definitions at startup.`,
	Run: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createParams.Name, "name", "", "Server name (required)")
	createCmd.Flags().StringVar(&createParams.Kind, "kind", "vanilla", "Server kind (vanilla|paper|spigot|fabric|forge|neoforge|bungeecord|velocity)")
	createCmd.Flags().StringVar(&createParams.Dir, "dir", "", "Working directory (default: <servers_dir>/<name>)")
	createCmd.Flags().StringVar(&createParams.Jar, "jar", "", "Server jar relative to the working directory")
	createCmd.Flags().StringVar(&createParams.JavaPath, "java", "", "Java binary (default: global java_path)")
	createCmd.Flags().IntVar(&createParams.HeapMinMB, "heap-min", 0, "Initial heap in MB")
	createCmd.Flags().IntVar(&createParams.HeapMaxMB, "heap-max", 0, "Maximum heap in MB")
	createCmd.Flags().StringVar(&createParams.ExtraArgs, "jvm-args", "", "Extra JVM flags, space separated")
	createCmd.Flags().IntVar(&createParams.Port, "port", 25565, "Server port (informational)")
	createCmd.Flags().BoolVar(&createParams.AutoStart, "autostart", false, "Start this server when the daemon starts")
	createCmd.Flags().BoolVar(&createParams.AutoRestart, "autorestart", true, "Restart this server after a crash")
	createCmd.Flags().IntVar(&createParams.MaxPlayers, "max-players", 20, "Player capacity (informational)")
	_ = createCmd.MarkFlagRequired("name")
}

func runCreate(cmd *cobra.Command, args []string) {
	cfg, st, log := openStore()

	bus := event.NewBus(cfg.Global.EventBufferSize, log)
	defer bus.Close()

	registry, err := server.NewRegistry(cfg, st, bus, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load registry: %v\n", err)
		os.Exit(1)
	}

	def, err := registry.Create(context.Background(), createParams)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created %s (%s)\n", def.Name, def.ID)
	fmt.Printf("  kind: %s\n", def.Kind)
	fmt.Printf("  dir:  %s\n", def.Dir)
	if def.Jar != "" {
		fmt.Printf("  jar:  %s\n", def.Jar)
	}
}

// openStore loads config and opens the database for offline commands.
func openStore() (*config.Config, *store.Store, *slog.Logger) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("warn", cfg.Global.LogFormat)

	if err := os.MkdirAll(cfg.Global.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	st, err := store.New(filepath.Join(cfg.Global.DataDir, "minehold.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	return cfg, st, log
}

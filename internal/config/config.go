package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file, falling back to defaults for
// anything the file leaves unset. An empty path checks MINEHOLD_CONFIG and
// then ./minehold.yaml; a missing file yields the pure default config.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MINEHOLD_CONFIG")
	}
	if path == "" {
		path = "minehold.yaml"
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Global: GlobalConfig{
			LogLevel:  "info",
			LogFormat: "text",

			DataDir:    "./data",
			ServersDir: "./servers",
			JavaPath:   "java",

			ReadinessTimeout: 180,
			StopTimeout:      30,
			KillGrace:        5,
			ShutdownTimeout:  60,

			MaxRestartAttempts: 3,
			RestartBackoff:     5,
			RestartBackoffMax:  300,

			ConsoleBufferLines: 2000,
			EventBufferSize:    256,
			SamplerInterval:    10,

			MetricsEnabled: true,
			MetricsPort:    9465,
			MetricsPath:    "/metrics",

			ConsoleHistoryLines: 200,
		},
		Kinds: DefaultKinds(),
		Relay: RelayConfig{
			Timeout: 10,
		},
		Alerts: AlertConfig{
			CPUPercent: 90,
			MemoryMB:   0,
			MinTPS:     15,
			Cooldown:   300,
		},
		Tracing: TracingConfig{
			Exporter:   "stdout",
			SampleRate: 1.0,
		},
	}
	return cfg
}

// DefaultKinds returns built-in kind definitions. The readiness strings are
// tunables, not a contract; operators override them per kind in the config.
func DefaultKinds() map[string]*KindConfig {
	vanillaMarker := `Done (`
	return map[string]*KindConfig{
		"vanilla": {
			ReadyMarkers: []string{vanillaMarker},
			StopCommand:  "stop",
			DefaultJar:   "server.jar",
		},
		"paper": {
			ReadyMarkers: []string{vanillaMarker},
			StopCommand:  "stop",
			DefaultJar:   "paper.jar",
		},
		"spigot": {
			ReadyMarkers: []string{vanillaMarker},
			StopCommand:  "stop",
			DefaultJar:   "spigot.jar",
		},
		"fabric": {
			ReadyMarkers: []string{vanillaMarker},
			StopCommand:  "stop",
			DefaultJar:   "fabric-server-launch.jar",
		},
		"forge": {
			ReadyMarkers: []string{vanillaMarker},
			StopCommand:  "stop",
			ArgsFile:     true,
		},
		"neoforge": {
			ReadyMarkers: []string{vanillaMarker},
			StopCommand:  "stop",
			ArgsFile:     true,
		},
		"bungeecord": {
			ReadyMarkers: []string{"Listening on "},
			StopCommand:  "end",
			DefaultJar:   "BungeeCord.jar",
		},
		"velocity": {
			ReadyMarkers: []string{"Done ("},
			StopCommand:  "shutdown",
			DefaultJar:   "velocity.jar",
		},
	}
}

// applyDefaults fills in anything a partial config file left zero-valued.
func (c *Config) applyDefaults() {
	def := Default()

	if c.Global.LogLevel == "" {
		c.Global.LogLevel = def.Global.LogLevel
	}
	if c.Global.LogFormat == "" {
		c.Global.LogFormat = def.Global.LogFormat
	}
	if c.Global.DataDir == "" {
		c.Global.DataDir = def.Global.DataDir
	}
	if c.Global.ServersDir == "" {
		c.Global.ServersDir = def.Global.ServersDir
	}
	if c.Global.JavaPath == "" {
		c.Global.JavaPath = def.Global.JavaPath
	}
	if c.Global.ReadinessTimeout == 0 {
		c.Global.ReadinessTimeout = def.Global.ReadinessTimeout
	}
	if c.Global.StopTimeout == 0 {
		c.Global.StopTimeout = def.Global.StopTimeout
	}
	if c.Global.KillGrace == 0 {
		c.Global.KillGrace = def.Global.KillGrace
	}
	if c.Global.ShutdownTimeout == 0 {
		c.Global.ShutdownTimeout = def.Global.ShutdownTimeout
	}
	if c.Global.MaxRestartAttempts == 0 {
		c.Global.MaxRestartAttempts = def.Global.MaxRestartAttempts
	}
	if c.Global.RestartBackoff == 0 {
		c.Global.RestartBackoff = def.Global.RestartBackoff
	}
	if c.Global.RestartBackoffMax == 0 {
		c.Global.RestartBackoffMax = def.Global.RestartBackoffMax
	}
	if c.Global.ConsoleBufferLines == 0 {
		c.Global.ConsoleBufferLines = def.Global.ConsoleBufferLines
	}
	if c.Global.EventBufferSize == 0 {
		c.Global.EventBufferSize = def.Global.EventBufferSize
	}
	if c.Global.SamplerInterval == 0 {
		c.Global.SamplerInterval = def.Global.SamplerInterval
	}
	if c.Global.MetricsPort == 0 {
		c.Global.MetricsPort = def.Global.MetricsPort
	}
	if c.Global.MetricsPath == "" {
		c.Global.MetricsPath = def.Global.MetricsPath
	}
	if c.Global.ConsoleHistoryLines == 0 {
		c.Global.ConsoleHistoryLines = def.Global.ConsoleHistoryLines
	}
	if c.Relay.Timeout == 0 {
		c.Relay.Timeout = def.Relay.Timeout
	}
	if c.Alerts.Cooldown == 0 {
		c.Alerts.Cooldown = def.Alerts.Cooldown
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = def.Tracing.Exporter
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = def.Tracing.SampleRate
	}

	// Kinds from the file extend the built-in set rather than replace it.
	if c.Kinds == nil {
		c.Kinds = DefaultKinds()
	} else {
		for name, kind := range DefaultKinds() {
			if existing, ok := c.Kinds[name]; !ok {
				c.Kinds[name] = kind
			} else {
				if len(existing.ReadyMarkers) == 0 {
					existing.ReadyMarkers = kind.ReadyMarkers
				}
				if existing.StopCommand == "" {
					existing.StopCommand = kind.StopCommand
				}
				if existing.DefaultJar == "" {
					existing.DefaultJar = kind.DefaultJar
				}
			}
		}
	}
}

// Kind returns the configuration for a server kind, falling back to vanilla
// semantics for unknown kinds.
func (c *Config) Kind(name string) *KindConfig {
	if k, ok := c.Kinds[name]; ok {
		return k
	}
	return &KindConfig{
		ReadyMarkers: []string{"Done ("},
		StopCommand:  "stop",
		DefaultJar:   "server.jar",
	}
}

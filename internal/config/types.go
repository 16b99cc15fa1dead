package config

// Config is the complete minehold configuration.
type Config struct {
	Global  GlobalConfig           `yaml:"global" json:"global"`
	Kinds   map[string]*KindConfig `yaml:"kinds" json:"kinds"`
	Relay   RelayConfig            `yaml:"relay" json:"relay"`
	Alerts  AlertConfig            `yaml:"alerts" json:"alerts"`
	Tracing TracingConfig          `yaml:"tracing" json:"tracing"`
}

// GlobalConfig contains daemon-wide settings.
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`   // debug | info | warn | error
	LogFormat string `yaml:"log_format" json:"log_format"` // json | text

	DataDir    string `yaml:"data_dir" json:"data_dir"`       // sqlite database location
	ServersDir string `yaml:"servers_dir" json:"servers_dir"` // working directories of managed servers

	JavaPath string `yaml:"java_path" json:"java_path"` // default launch interpreter

	ReadinessTimeout int `yaml:"readiness_timeout" json:"readiness_timeout"` // seconds
	StopTimeout      int `yaml:"stop_timeout" json:"stop_timeout"`           // seconds
	KillGrace        int `yaml:"kill_grace" json:"kill_grace"`               // seconds
	ShutdownTimeout  int `yaml:"shutdown_timeout" json:"shutdown_timeout"`   // seconds

	MaxRestartAttempts int `yaml:"max_restart_attempts" json:"max_restart_attempts"`
	RestartBackoff     int `yaml:"restart_backoff" json:"restart_backoff"`         // seconds, initial
	RestartBackoffMax  int `yaml:"restart_backoff_max" json:"restart_backoff_max"` // seconds, cap

	ConsoleBufferLines int `yaml:"console_buffer_lines" json:"console_buffer_lines"`
	EventBufferSize    int `yaml:"event_buffer_size" json:"event_buffer_size"` // per-subscriber queue depth

	SamplerInterval int `yaml:"sampler_interval" json:"sampler_interval"` // seconds

	MetricsEnabled bool   `yaml:"metrics_enabled" json:"metrics_enabled"`
	MetricsPort    int    `yaml:"metrics_port" json:"metrics_port"`
	MetricsPath    string `yaml:"metrics_path" json:"metrics_path"`

	ConsoleHistoryLines int `yaml:"console_history_lines" json:"console_history_lines"` // websocket replay depth
}

// KindConfig describes one server kind (vanilla, paper, forge, ...).
type KindConfig struct {
	// ReadyMarkers are substrings that resolve starting -> running when seen
	// in console output. Matched against the line suffix after the log prefix.
	ReadyMarkers []string `yaml:"ready_markers" json:"ready_markers"`

	// StopCommand is written to stdin for a graceful shutdown ("stop" for
	// servers, "end" for proxies).
	StopCommand string `yaml:"stop_command" json:"stop_command"`

	// DefaultJar is the jar file used when a definition does not name one.
	DefaultJar string `yaml:"default_jar" json:"default_jar"`

	// ArgsFile marks kinds launched through an @argsfile (forge, neoforge).
	ArgsFile bool `yaml:"args_file" json:"args_file"`
}

// RelayConfig configures the chat relay webhook consumer.
type RelayConfig struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	WebhookURL string   `yaml:"webhook_url" json:"webhook_url"`
	Events     []string `yaml:"events" json:"events"`   // event kinds to forward; empty = chat/join/leave/death/advancement
	Timeout    int      `yaml:"timeout" json:"timeout"` // seconds per delivery
}

// AlertConfig configures the threshold alerting consumer.
type AlertConfig struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	CPUPercent float64 `yaml:"cpu_percent" json:"cpu_percent"` // alert above this
	MemoryMB   int     `yaml:"memory_mb" json:"memory_mb"`     // alert above this RSS
	MinTPS     float64 `yaml:"min_tps" json:"min_tps"`         // alert below this
	Cooldown   int     `yaml:"cooldown" json:"cooldown"`       // seconds between repeats per server
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Exporter   string  `yaml:"exporter" json:"exporter"` // otlp-grpc | stdout
	Endpoint   string  `yaml:"endpoint" json:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`
	UseTLS     bool    `yaml:"use_tls" json:"use_tls"`
}

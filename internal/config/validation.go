package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for values that would misbehave at
// runtime. Called by Load after defaults are applied.
func (c *Config) Validate() error {
	switch c.Global.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.Global.LogLevel)
	}
	switch c.Global.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log_format: %s", c.Global.LogFormat)
	}

	if c.Global.ReadinessTimeout < 0 {
		return fmt.Errorf("readiness_timeout must be positive")
	}
	if c.Global.StopTimeout < 0 {
		return fmt.Errorf("stop_timeout must be positive")
	}
	if c.Global.MaxRestartAttempts < 0 {
		return fmt.Errorf("max_restart_attempts must not be negative")
	}
	if c.Global.RestartBackoff <= 0 {
		return fmt.Errorf("restart_backoff must be positive")
	}
	if c.Global.RestartBackoffMax < c.Global.RestartBackoff {
		return fmt.Errorf("restart_backoff_max (%d) is below restart_backoff (%d)",
			c.Global.RestartBackoffMax, c.Global.RestartBackoff)
	}
	if c.Global.ConsoleBufferLines <= 0 {
		return fmt.Errorf("console_buffer_lines must be positive")
	}
	if c.Global.MetricsEnabled && (c.Global.MetricsPort < 1 || c.Global.MetricsPort > 65535) {
		return fmt.Errorf("invalid metrics_port: %d", c.Global.MetricsPort)
	}

	for name, kind := range c.Kinds {
		if kind.StopCommand == "" {
			return fmt.Errorf("kind %s has no stop_command", name)
		}
		if !kind.ArgsFile && kind.DefaultJar == "" {
			return fmt.Errorf("kind %s has neither default_jar nor args_file", name)
		}
	}

	if c.Relay.Enabled {
		if c.Relay.WebhookURL == "" {
			return fmt.Errorf("relay is enabled but webhook_url is empty")
		}
		if _, err := url.ParseRequestURI(c.Relay.WebhookURL); err != nil {
			return fmt.Errorf("invalid relay webhook_url: %w", err)
		}
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp-grpc":
			if c.Tracing.Endpoint == "" {
				return fmt.Errorf("tracing exporter otlp-grpc requires an endpoint")
			}
		case "stdout":
		default:
			return fmt.Errorf("unsupported trace exporter: %s (supported: otlp-grpc, stdout)", c.Tracing.Exporter)
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing sample_rate must be within [0, 1]")
		}
	}

	return nil
}

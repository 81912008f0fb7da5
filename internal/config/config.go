// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// RunnerConfig represents the top-level bootstrap configuration. Maps to
// the `runner:` root key in YAML.
type RunnerConfig struct {
	Node       NodeConfig       `mapstructure:"node"`
	Network    NetworkConfig    `mapstructure:"network"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	StateSync  StateSyncConfig  `mapstructure:"state_sync"`
	Components ComponentsConfig `mapstructure:"components"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// TelemetryConfig locates the per-run CSV telemetry output (§6).
type TelemetryConfig struct {
	Path          string `mapstructure:"path"`
	ComponentDir  string `mapstructure:"component_dir"` // empty disables per-component CSVs
}

// ─── Node Identity ───

// NodeConfig contains node identification settings.
type NodeConfig struct {
	IP       string            `mapstructure:"ip"`       // Empty = auto-detect
	Hostname string            `mapstructure:"hostname"` // Empty = os.Hostname()
	Tags     map[string]string `mapstructure:"tags"`
}

// ─── Network ───

// NetworkConfig configures the runner's shared UDP socket (§6).
type NetworkConfig struct {
	UDPListen string `mapstructure:"udp_listen"`
}

// ─── Scheduling ───

// SchedulingConfig configures the control thread's own real-time priority
// and affinity, and the default priority granted to components while
// they hold the CPU for their minor frame (§5).
type SchedulingConfig struct {
	ControlThreadCore     int `mapstructure:"control_thread_core"`
	ControlThreadPriority int `mapstructure:"control_thread_priority"`
	ComponentPriority     int `mapstructure:"component_priority"`
	CommAttempts          int `mapstructure:"comm_attempts"` // K, §4.2
}

// ─── State sync ───

// StateSyncConfig configures the state service's drain budget and frame
// size cap (§4.3, §9 open question).
type StateSyncConfig struct {
	Attempts   int `mapstructure:"attempts"`
	CapBytes   int `mapstructure:"cap_bytes"`
}

// ─── Components ───

// ComponentsConfig locates the configuration directory the background
// worker resolves relative task-document paths against (§4.5,
// §6: "a known configuration directory").
type ComponentsConfig struct {
	ConfigDir        string `mapstructure:"config_dir"`
	InitialConfig    string `mapstructure:"initial_config"`
	SpawnGracePeriod string `mapstructure:"spawn_grace_period"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Admin ───

// AdminConfig configures the read-only status introspection endpoint.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Socket  string `mapstructure:"socket"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
	Loki LokiOutputConfig `mapstructure:"loki"`
}

// FileOutputConfig configures the file-backed, rotated logging sink.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// LokiOutputConfig configures Loki log output.
type LokiOutputConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	Endpoint     string            `mapstructure:"endpoint"`
	Labels       map[string]string `mapstructure:"labels"`
	BatchSize    int               `mapstructure:"batch_size"`
	BatchTimeout string            `mapstructure:"batch_timeout"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `runner: ...`.
type configRoot struct {
	Runner RunnerConfig `mapstructure:"runner"`
}

// Load loads the bootstrap configuration from file. The YAML file uses
// `runner:` as root key; env vars use RUNNER_ prefix (e.g.
// RUNNER_LOG_LEVEL).
func Load(path string) (*RunnerConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Runner

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("runner.network.udp_listen", "0.0.0.0:5000")

	v.SetDefault("runner.scheduling.control_thread_core", 0)
	v.SetDefault("runner.scheduling.control_thread_priority", 99)
	v.SetDefault("runner.scheduling.component_priority", 99)
	v.SetDefault("runner.scheduling.comm_attempts", 5)

	v.SetDefault("runner.state_sync.attempts", 5)
	v.SetDefault("runner.state_sync.cap_bytes", 64*1024)

	v.SetDefault("runner.components.config_dir", "configuration")
	v.SetDefault("runner.components.initial_config", "default.yaml")
	v.SetDefault("runner.components.spawn_grace_period", "50ms")

	v.SetDefault("runner.telemetry.path", "times.csv")
	v.SetDefault("runner.telemetry.component_dir", "")

	v.SetDefault("runner.log.level", "info")
	v.SetDefault("runner.log.format", "json")
	v.SetDefault("runner.log.outputs.file.enabled", false)
	v.SetDefault("runner.log.outputs.file.path", "/var/log/runner/runner.log")
	v.SetDefault("runner.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("runner.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("runner.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("runner.log.outputs.file.rotation.compress", true)

	v.SetDefault("runner.metrics.enabled", true)
	v.SetDefault("runner.metrics.listen", ":9091")
	v.SetDefault("runner.metrics.path", "/metrics")

	v.SetDefault("runner.admin.enabled", true)
	v.SetDefault("runner.admin.socket", "/var/run/runner-admin.sock")
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults (hostname and node IP auto-detection).
func (cfg *RunnerConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	resolvedIP, err := resolveNodeIP(&cfg.Node)
	if err != nil {
		return err
	}
	cfg.Node.IP = resolvedIP

	if cfg.Scheduling.ControlThreadPriority < 1 || cfg.Scheduling.ControlThreadPriority > 99 {
		return fmt.Errorf("scheduling.control_thread_priority must be in [1,99], got %d", cfg.Scheduling.ControlThreadPriority)
	}
	if cfg.Scheduling.ComponentPriority < 1 || cfg.Scheduling.ComponentPriority > 99 {
		return fmt.Errorf("scheduling.component_priority must be in [1,99], got %d", cfg.Scheduling.ComponentPriority)
	}

	return nil
}

// resolveNodeIP resolves the node IP address: explicit value, then
// auto-detect the first non-loopback, non-link-local IPv4 address.
func resolveNodeIP(node *NodeConfig) (string, error) {
	if node.IP != "" {
		return node.IP, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("cannot resolve node IP: failed to list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			if ip4[0] == 169 && ip4[1] == 254 {
				continue
			}
			return ip4.String(), nil
		}
	}

	return "", fmt.Errorf("cannot resolve node IP: set RUNNER_NODE_IP or runner.node.ip")
}

package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full runtime configuration. Zero values fall through to each
// component's own defaults, so a minimal config file only needs the secrets.
type Config struct {
	Log struct {
		// Level is a zap level name: debug, info, warn, error.
		Level string `yaml:"level"`
		// Development switches to the human-readable console encoder.
		Development bool `yaml:"development"`
	} `yaml:"log"`

	Database struct {
		// DSN is the Postgres connection string. Empty selects the in-memory
		// token store.
		DSN string `yaml:"dsn"`
		// FieldSecret enables at-rest encryption of identity columns.
		FieldSecret string `yaml:"field_secret"`
	} `yaml:"database"`

	Token struct {
		// HashSalt is the deployment-wide storage-hash salt, hex encoded.
		// Leaving it empty invalidates stored tokens across restarts.
		HashSalt         string   `yaml:"hash_salt"`
		DefaultLifetime  Duration `yaml:"default_lifetime"`
		MaxLifetime      Duration `yaml:"max_lifetime"`
		Retention        Duration `yaml:"retention"`
		CleanupInterval  Duration `yaml:"cleanup_interval"`
		MonitorThreshold int      `yaml:"monitor_threshold"`
		MonitorCooldown  Duration `yaml:"monitor_cooldown"`
	} `yaml:"token"`

	Session struct {
		// Grace keeps ended sessions queryable before eviction.
		Grace Duration `yaml:"grace"`
	} `yaml:"session"`

	RateLimit struct {
		Window         Duration `yaml:"window"`
		MaxPerWindow   int      `yaml:"max_per_window"`
		AbuseWindow    Duration `yaml:"abuse_window"`
		AbuseThreshold int      `yaml:"abuse_threshold"`
		BlockDuration  Duration `yaml:"block_duration"`
		PruneInterval  Duration `yaml:"prune_interval"`
		IdleEviction   Duration `yaml:"idle_eviction"`
	} `yaml:"rate_limit"`

	Breaker struct {
		FailureThreshold int      `yaml:"failure_threshold"`
		SuccessThreshold int      `yaml:"success_threshold"`
		RecoveryTimeout  Duration `yaml:"recovery_timeout"`
		CallTimeout      Duration `yaml:"call_timeout"`
	} `yaml:"breaker"`

	Flow struct {
		StepTimeout     Duration `yaml:"step_timeout"`
		RingTimeout     Duration `yaml:"ring_timeout"`
		MaxCallDuration Duration `yaml:"max_call_duration"`
	} `yaml:"flow"`

	Media struct {
		// Enabled selects the WebRTC engine; disabled deployments run with a
		// no-op engine and negotiate media client-side.
		Enabled    bool     `yaml:"enabled"`
		ICEServers []string `yaml:"ice_servers"`
	} `yaml:"media"`
}

// LoadConfig reads a YAML config file. An empty path returns the zero config
// so every component runs on its defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Package config loads server configuration from defaults, an optional
// YAML file, and environment variables, in increasing precedence.
//
// Environment keys use the KANBAN_ prefix with underscores for nesting
// (KANBAN_SERVER_PORT). The documented short names (PORT, DATABASE_PATH,
// API_KEY_SECRET, ...) are also honored for compatibility.
package config

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full server configuration tree.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Priority  PriorityConfig  `mapstructure:"priority"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file the tree was loaded from, empty when
	// only defaults and environment were used.
	File string `mapstructure:"-"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	RequestsPerMin  int           `mapstructure:"requests_per_minute" validate:"min=1"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path" validate:"required"`
	MemoryLimit string        `mapstructure:"memory_limit"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	// Secret is the HMAC key used to derive stored key digests. Auth
	// is disabled when no keys are configured.
	Secret string   `mapstructure:"secret"`
	Keys   []string `mapstructure:"keys"`
}

// Enabled reports whether API authentication is configured: a signing
// secret, with or without a static key list.
func (a AuthConfig) Enabled() bool { return a.Secret != "" || len(a.Keys) > 0 }

// Verify checks a presented API key in constant time per candidate.
func (a AuthConfig) Verify(key string) bool {
	if key == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.Secret))
	mac.Write([]byte(key))
	presented := mac.Sum(nil)
	for _, known := range a.Keys {
		mac := hmac.New(sha256.New, []byte(a.Secret))
		mac.Write([]byte(known))
		if hmac.Equal(presented, mac.Sum(nil)) {
			return true
		}
	}
	return false
}

type WebSocketConfig struct {
	Path              string        `mapstructure:"path"`
	MaxConnections    int           `mapstructure:"max_connections" validate:"min=1"`
	MaxSubscriptions  int           `mapstructure:"max_subscriptions" validate:"min=1"`
	AuthTimeout       time.Duration `mapstructure:"auth_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteQueueSize    int           `mapstructure:"write_queue_size" validate:"min=1"`
	InboundPerMinute  int           `mapstructure:"inbound_per_minute" validate:"min=1"`
}

type BackupConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Dir           string        `mapstructure:"dir"`
	Schedule      string        `mapstructure:"schedule"`
	Incremental   time.Duration `mapstructure:"incremental_interval"`
	RetentionDays int           `mapstructure:"retention_days" validate:"min=1"`
	RetentionKeep int           `mapstructure:"retention_count" validate:"min=1"`
	Compress      bool          `mapstructure:"compress"`
}

// PriorityConfig holds the scoring weights and recalc cadence.
type PriorityConfig struct {
	Weights            Weights       `mapstructure:"weights"`
	RecalcInterval     time.Duration `mapstructure:"recalc_interval"`
	StaleThresholdDays int           `mapstructure:"stale_threshold_days" validate:"min=1"`
}

// Weights are the priority scoring factor weights. All must be
// non-negative and they must sum to a positive total.
type Weights struct {
	Age        float64 `mapstructure:"age" json:"age" validate:"min=0"`
	Dependency float64 `mapstructure:"dependency" json:"dependency" validate:"min=0"`
	Deadline   float64 `mapstructure:"deadline" json:"deadline" validate:"min=0"`
	Manual     float64 `mapstructure:"manual" json:"manual" validate:"min=0"`
	Context    float64 `mapstructure:"context" json:"context" validate:"min=0"`
}

// Sum returns the weight total.
func (w Weights) Sum() float64 {
	return w.Age + w.Dependency + w.Deadline + w.Manual + w.Context
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DefaultWeights are the scoring weights used when none are configured.
var DefaultWeights = Weights{
	Age:        0.15,
	Dependency: 0.30,
	Deadline:   0.25,
	Manual:     0.20,
	Context:    0.10,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requests_per_minute", 120)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "./data/kanban.db")
	v.SetDefault("database.memory_limit", "")
	v.SetDefault("database.timeout", 5*time.Second)

	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.max_connections", 256)
	v.SetDefault("websocket.max_subscriptions", 50)
	v.SetDefault("websocket.auth_timeout", 30*time.Second)
	v.SetDefault("websocket.heartbeat_interval", 25*time.Second)
	v.SetDefault("websocket.pong_timeout", 60*time.Second)
	v.SetDefault("websocket.write_queue_size", 256)
	v.SetDefault("websocket.inbound_per_minute", 100)

	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.dir", "./data/backups")
	v.SetDefault("backup.schedule", "02:00")
	v.SetDefault("backup.incremental_interval", time.Hour)
	v.SetDefault("backup.retention_days", 30)
	v.SetDefault("backup.retention_count", 14)
	v.SetDefault("backup.compress", false)

	v.SetDefault("priority.weights.age", DefaultWeights.Age)
	v.SetDefault("priority.weights.dependency", DefaultWeights.Dependency)
	v.SetDefault("priority.weights.deadline", DefaultWeights.Deadline)
	v.SetDefault("priority.weights.manual", DefaultWeights.Manual)
	v.SetDefault("priority.weights.context", DefaultWeights.Context)
	v.SetDefault("priority.recalc_interval", 5*time.Minute)
	v.SetDefault("priority.stale_threshold_days", 7)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Short environment names documented alongside the KANBAN_ forms.
var envAliases = map[string]string{
	"server.port":                  "PORT",
	"server.host":                  "HOST",
	"database.path":                "DATABASE_PATH",
	"database.memory_limit":        "DATABASE_MEMORY_LIMIT",
	"database.timeout":             "DATABASE_TIMEOUT",
	"auth.secret":                  "API_KEY_SECRET",
	"auth.keys":                    "API_KEYS",
	"websocket.max_connections":    "WEBSOCKET_MAX_CONNECTIONS",
	"websocket.auth_timeout":       "WEBSOCKET_AUTH_TIMEOUT",
	"websocket.heartbeat_interval": "WEBSOCKET_HEARTBEAT_INTERVAL",
	"backup.enabled":               "BACKUP_ENABLED",
	"backup.schedule":              "BACKUP_SCHEDULE",
	"backup.retention_days":        "BACKUP_RETENTION_DAYS",
}

// Load reads configuration from the given YAML file (optional, pass ""
// to skip), then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("KANBAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		if err := v.BindEnv(key, "KANBAN_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), alias); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.File = path

	// API_KEYS is a comma-separated list when set via environment.
	if len(cfg.Auth.Keys) == 1 && strings.Contains(cfg.Auth.Keys[0], ",") {
		cfg.Auth.Keys = splitCSV(cfg.Auth.Keys[0])
	}

	// PRIORITY_FACTORS carries the full weight set as JSON.
	if raw := os.Getenv("PRIORITY_FACTORS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Priority.Weights); err != nil {
			return nil, fmt.Errorf("parse PRIORITY_FACTORS: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the tree, including the weight-sum rule.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) && len(verr) > 0 {
			f := verr[0]
			return fmt.Errorf("config: %s: failed %q validation (value %v)", f.Namespace(), f.Tag(), f.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Priority.Weights.Validate(); err != nil {
		return err
	}
	if _, err := parseClock(c.Backup.Schedule); err != nil {
		return err
	}
	return nil
}

// Validate rejects negative weights and zero-sum weight sets.
func (w Weights) Validate() error {
	for name, val := range map[string]float64{
		"age": w.Age, "dependency": w.Dependency, "deadline": w.Deadline,
		"manual": w.Manual, "context": w.Context,
	} {
		if val < 0 {
			return fmt.Errorf("config: priority weight %s must be non-negative, got %v", name, val)
		}
	}
	if w.Sum() <= 0 {
		return fmt.Errorf("config: priority weights sum to %v, must be positive", w.Sum())
	}
	return nil
}

func parseClock(s string) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: backup schedule must be HH:MM, got %q", s)
	}
	return t, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

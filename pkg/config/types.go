// Package config merges flags, environment and YAML file configuration
// into one effective config for the server.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Security   SecurityConfig   `yaml:"security"`
	Logging    LoggingConfig    `yaml:"logging"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Validation ValidationConfig `yaml:"validation"`
}

// DirectoryConfig points at the seed file backing the in-memory family
// directory. Empty means start with an empty directory.
type DirectoryConfig struct {
	SeedFile string `yaml:"seed_file"`
}

// ServerConfig holds listen and storage settings. FastAddr, when set,
// enables the fasthttp enqueue-only mutation listener.
type ServerConfig struct {
	Address  string    `yaml:"address"`
	Port     int       `yaml:"port"`
	FastAddr string    `yaml:"fast_addr"`
	DBPath   string    `yaml:"db_path"`
	TLS      TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RealtimeConfig tunes the broadcast hub.
type RealtimeConfig struct {
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`
	SendBuffer       int      `yaml:"send_buffer"`
	SweepInterval    Duration `yaml:"sweep_interval"`
}

// IngestConfig holds queueing and processing configuration.
type IngestConfig struct {
	Queue struct {
		Capacity             int       `yaml:"capacity"`
		MaxPooledBufferBytes SizeBytes `yaml:"max_pooled_buffer_bytes"`
	} `yaml:"queue"`
	Processor struct {
		Lanes int `yaml:"lanes"`
	} `yaml:"processor"`
}

// ReconcileConfig drives the scheduled warmth reconciler and sweepers.
type ReconcileConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Cron              string   `yaml:"cron"`
	ActivityRetention Duration `yaml:"activity_retention"`
	LockTTL           Duration `yaml:"lock_ttl"`
	Paused            bool     `yaml:"paused"`
}

// ValidationConfig mirrors the rule file shape consumed by pkg/validation.
type ValidationConfig struct {
	Required []string `yaml:"required"`
	Types    []struct {
		Path string `yaml:"path"`
		Type string `yaml:"type"` // string|number|boolean|object|array
	} `yaml:"types"`
	MaxLen []struct {
		Path string `yaml:"path"`
		Max  int    `yaml:"max"`
	} `yaml:"max_len"`
	Enums []struct {
		Path   string   `yaml:"path"`
		Values []string `yaml:"values"`
	} `yaml:"enums"`
	WhenThen []struct {
		When struct {
			Path   string      `yaml:"path"`
			Equals interface{} `yaml:"equals"`
		} `yaml:"when"`
		Then struct {
			Required []string `yaml:"required"`
		} `yaml:"then"`
	} `yaml:"when_then"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration and parses YAML strings like "100ms" or
// plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  address: "127.0.0.1"
  port: 9090
  fast_addr: ":9091"
  db_path: "/tmp/hearth-db"
security:
  api_keys:
    backend: ["bk-1"]
    frontend: ["fk-1", "fk-2"]
logging:
  level: debug
realtime:
  heartbeat_timeout: 90s
  send_buffer: 128
ingest:
  queue:
    capacity: 2048
    max_pooled_buffer_bytes: 64KB
  processor:
    lanes: 4
reconcile:
  enabled: true
  cron: "0 3 * * *"
  activity_retention: 168h
  lock_ttl: 2m
validation:
  required: ["user_id"]
  max_len:
    - path: note
      max: 280
  enums:
    - path: kind
      values: ["love", "happy"]
  when_then:
    - when:
        path: milestone
        equals: true
      then:
        required: ["note"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr: %q", cfg.Addr())
	}
	if cfg.Server.FastAddr != ":9091" || cfg.Server.DBPath != "/tmp/hearth-db" {
		t.Fatalf("server section: %+v", cfg.Server)
	}
	if cfg.Realtime.HeartbeatTimeout.Duration() != 90*time.Second {
		t.Fatalf("heartbeat timeout: %v", cfg.Realtime.HeartbeatTimeout.Duration())
	}
	if cfg.Ingest.Queue.MaxPooledBufferBytes.Int64() != 64000 {
		t.Fatalf("size parse: %d", cfg.Ingest.Queue.MaxPooledBufferBytes.Int64())
	}
	if !cfg.Reconcile.Enabled || cfg.Reconcile.Cron != "0 3 * * *" {
		t.Fatalf("reconcile section: %+v", cfg.Reconcile)
	}
	if cfg.Reconcile.LockTTL.Duration() != 2*time.Minute {
		t.Fatalf("lock ttl: %v", cfg.Reconcile.LockTTL.Duration())
	}
	if len(cfg.Security.APIKeys.Frontend) != 2 {
		t.Fatalf("api keys: %+v", cfg.Security.APIKeys)
	}
}

func TestRulesConversion(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	r := cfg.Rules()
	if len(r.Required) != 1 || r.Required[0] != "user_id" {
		t.Fatalf("required: %+v", r.Required)
	}
	if r.MaxLen["note"] != 280 {
		t.Fatalf("max_len: %+v", r.MaxLen)
	}
	if len(r.Enums["kind"]) != 2 {
		t.Fatalf("enums: %+v", r.Enums)
	}
	if len(r.WhenThen) != 1 || r.WhenThen[0].WhenPath != "milestone" {
		t.Fatalf("when_then: %+v", r.WhenThen)
	}
	if eq, ok := r.WhenThen[0].Equals.(bool); !ok || !eq {
		t.Fatalf("when equals should decode as bool true: %#v", r.WhenThen[0].Equals)
	}
}

func TestDurationNumericSeconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, "realtime:\n  heartbeat_timeout: 30\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Realtime.HeartbeatTimeout.Duration() != 30*time.Second {
		t.Fatalf("numeric duration: %v", cfg.Realtime.HeartbeatTimeout.Duration())
	}
}

func TestSizeBytesPlainInteger(t *testing.T) {
	cfg, err := Load(writeConfig(t, "ingest:\n  queue:\n    max_pooled_buffer_bytes: 4096\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ingest.Queue.MaxPooledBufferBytes.Int64() != 4096 {
		t.Fatalf("plain integer size: %d", cfg.Ingest.Queue.MaxPooledBufferBytes.Int64())
	}
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	fileCfg := &Config{}
	fileCfg.Server.Address = "10.0.0.1"
	fileCfg.Server.Port = 7000
	fileCfg.Server.DBPath = "/file/db"

	envCfg := &Config{}
	envCfg.Server.Address = "10.0.0.2"
	envCfg.Server.Port = 7001
	envCfg.Server.DBPath = "/env/db"

	// Explicit --config wins.
	res, err := LoadEffectiveConfig(Flags{Config: "c.yaml", Set: map[string]bool{"config": true}}, fileCfg, true, envCfg, EnvResult{})
	if err != nil {
		t.Fatalf("config source: %v", err)
	}
	if res.Source != "config" || res.DBPath != "/file/db" {
		t.Fatalf("config precedence: %+v", res)
	}

	// --config pointing at a missing file is fatal.
	if _, err := LoadEffectiveConfig(Flags{Config: "c.yaml", Set: map[string]bool{"config": true}}, &Config{}, false, envCfg, EnvResult{}); err == nil {
		t.Fatalf("missing explicit config should error")
	}

	// Explicit addr/db flags beat the file.
	res, err = LoadEffectiveConfig(Flags{Addr: ":9999", DB: "/flag/db", Set: map[string]bool{"addr": true, "db": true}}, fileCfg, true, envCfg, EnvResult{})
	if err != nil {
		t.Fatalf("flags source: %v", err)
	}
	if res.Source != "flags" || res.Addr != ":9999" || res.DBPath != "/flag/db" {
		t.Fatalf("flags precedence: %+v", res)
	}

	// Otherwise a present file beats env.
	res, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, fileCfg, true, envCfg, EnvResult{})
	if err != nil {
		t.Fatalf("file source: %v", err)
	}
	if res.Source != "config" || res.Addr != "10.0.0.1:7000" {
		t.Fatalf("file fallback: %+v", res)
	}

	// Env is the last resort.
	res, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, &Config{}, false, envCfg, EnvResult{})
	if err != nil {
		t.Fatalf("env source: %v", err)
	}
	if res.Source != "env" || res.DBPath != "/env/db" {
		t.Fatalf("env fallback: %+v", res)
	}
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("HEARTH_ADDR", "0.0.0.0:8088")
	t.Setenv("HEARTH_API_BACKEND_KEYS", "bk-1, bk-2")
	t.Setenv("HEARTH_LOG_LEVEL", "warn")

	cfg, res := ParseConfigEnvs()
	if !res.EnvUsed {
		t.Fatalf("env should be marked used")
	}
	if cfg.Server.Address != "0.0.0.0" || cfg.Server.Port != 8088 {
		t.Fatalf("addr parse: %+v", cfg.Server)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level: %q", cfg.Logging.Level)
	}
	if _, ok := res.BackendKeys["bk-2"]; !ok {
		t.Fatalf("backend keys: %+v", res.BackendKeys)
	}
	if _, ok := res.SigningKeys["bk-1"]; !ok {
		t.Fatalf("signing keys mirror backend keys: %+v", res.SigningKeys)
	}
}

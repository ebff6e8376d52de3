package config

import (
	"fmt"
	"os"
	"sync"

	"hearth/pkg/validation"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds derived runtime values that other packages may query
// at runtime (populated during startup after merging env+file).
type RuntimeConfig struct {
	BackendKeys map[string]struct{}
	SigningKeys map[string]struct{}
}

var (
	runtimeMu  sync.RWMutex
	runtimeCfg *RuntimeConfig
)

// SetRuntime sets the canonical runtime config used by the running server.
func SetRuntime(rc *RuntimeConfig) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtimeCfg = rc
}

// GetBackendKeys returns a copy of configured backend keys.
func GetBackendKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	out := map[string]struct{}{}
	if runtimeCfg == nil || runtimeCfg.BackendKeys == nil {
		return out
	}
	for k := range runtimeCfg.BackendKeys {
		out[k] = struct{}{}
	}
	return out
}

// GetSigningKeys returns a copy of configured signing keys.
func GetSigningKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	out := map[string]struct{}{}
	if runtimeCfg == nil || runtimeCfg.SigningKeys == nil {
		return out
	}
	for k := range runtimeCfg.SigningKeys {
		out[k] = struct{}{}
	}
	return out
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// Rules converts the YAML validation section into the rule set consumed by
// pkg/validation.
func (c *Config) Rules() validation.Rules {
	r := validation.Rules{
		Required: append([]string{}, c.Validation.Required...),
		Types:    map[string]string{},
		MaxLen:   map[string]int{},
		Enums:    map[string][]string{},
	}
	for _, t := range c.Validation.Types {
		r.Types[t.Path] = t.Type
	}
	for _, m := range c.Validation.MaxLen {
		r.MaxLen[m.Path] = m.Max
	}
	for _, e := range c.Validation.Enums {
		r.Enums[e.Path] = append([]string{}, e.Values...)
	}
	for _, wt := range c.Validation.WhenThen {
		r.WhenThen = append(r.WhenThen, validation.WhenThenRule{
			WhenPath: wt.When.Path,
			Equals:   wt.When.Equals,
			ThenReq:  append([]string{}, wt.Then.Required...),
		})
	}
	return r
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and HEARTH_CONFIG when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("HEARTH_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

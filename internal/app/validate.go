package app

import (
	"fmt"
	"os"

	"hearth/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, HEARTH_DB_PATH env, or server.db_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	// the fast listener must not collide with the main listener
	if fa := eff.Config.Server.FastAddr; fa != "" && fa == eff.Addr {
		return fmt.Errorf("server.fast_addr must differ from the main listen address (%s)", eff.Addr)
	}

	if sf := eff.Config.Directory.SeedFile; sf != "" {
		if _, err := os.Stat(sf); err != nil {
			return fmt.Errorf("directory seed file not accessible: %w", err)
		}
	}

	return nil
}

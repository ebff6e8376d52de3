package sensor

import (
	"context"
	"time"

	"hearth/pkg/logger"
	"hearth/pkg/store"
)

// PauseResumer is the slice of the ingest processor the monitor drives.
type PauseResumer interface {
	Pause()
	Resume()
}

// MonitorConfig controls thresholds and intervals for the store monitor.
type MonitorConfig struct {
	PollInterval time.Duration

	WALHighBytes uint64
	WALLowBytes  uint64

	DiskHighPct int
	DiskLowPct  int

	// hysteresis window before leaving the paused state
	RecoveryWindow time.Duration
}

// DefaultMonitorConfig returns sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval:   500 * time.Millisecond,
		WALHighBytes:   1 << 30, // 1 GiB
		WALLowBytes:    700 << 20,
		DiskHighPct:    90,
		DiskLowPct:     75,
		RecoveryWindow: 5 * time.Second,
	}
}

// StartStoreMonitor starts a background monitor that watches pebble WAL
// growth and disk usage and pauses ingest while the store is under
// pressure. Returns a function to stop the monitor.
func StartStoreMonitor(ctx context.Context, p PauseResumer, s *Sensor, cfg MonitorConfig) context.CancelFunc {
	if cfg.PollInterval <= 0 {
		cfg = DefaultMonitorConfig()
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		state := "normal"
		var lastCritical time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m := store.GetEngineMetrics()
				hw := s.Snapshot()
				diskUtil := 0
				if hw.DiskTotal > 0 {
					used := hw.DiskTotal - hw.DiskFree
					diskUtil = int((used * 100) / hw.DiskTotal)
				}

				if m.WALBytes >= cfg.WALHighBytes || diskUtil >= cfg.DiskHighPct {
					if state != "paused" {
						logger.Warn("store_monitor_pausing_ingest", "wal_bytes", m.WALBytes, "disk_util", diskUtil)
						p.Pause()
						s.SendThrottle(ThrottleRequest{Source: "store_monitor", Reason: "wal_or_disk_high", Severity: 1.0})
						state = "paused"
					}
					lastCritical = time.Now()
					continue
				}

				if state == "paused" {
					if time.Since(lastCritical) > cfg.RecoveryWindow && m.WALBytes <= cfg.WALLowBytes && diskUtil <= cfg.DiskLowPct {
						logger.Info("store_monitor_resuming_ingest", "wal_bytes", m.WALBytes, "disk_util", diskUtil)
						p.Resume()
						s.SendThrottle(ThrottleRequest{Source: "store_monitor", Reason: "recovered", Severity: 0})
						state = "normal"
					}
					continue
				}
			}
		}
	}()
	return cancel
}

//go:build !linux

package sensor

// Disk fields stay zero where statfs is unavailable; the monitor then
// relies on WAL size alone.
func fillDisk(s *Snapshot) {}

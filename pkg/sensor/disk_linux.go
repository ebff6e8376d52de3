//go:build linux

package sensor

import "syscall"

func fillDisk(s *Snapshot) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(".", &st); err != nil {
		return
	}
	bs := uint64(st.Bsize)
	s.DiskTotal = st.Blocks * bs
	s.DiskFree = st.Bavail * bs
}

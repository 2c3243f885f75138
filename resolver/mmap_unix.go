//go:build unix

package resolver

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapRead maps path read-only and copies it into a plain []byte (the
// mapping itself is unmapped immediately after — this module has no
// use for a live mapping past the initial parse, and copying avoids
// holding a file descriptor's mapping open for the module's lifetime).
func mmapRead(path string) ([]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || st.Size() == 0 {
		return nil, false
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, false
	}
	defer unix.Munmap(data)

	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

//go:build !unix

package resolver

// mmapRead has no portable mapping outside unix.Mmap's supported
// platforms; readFile falls back to an ordinary os.ReadFile there.
func mmapRead(path string) ([]byte, bool) { return nil, false }

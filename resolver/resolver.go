// Package resolver locates and reads the source of an imported module
// (spec.md §4.5: "load source via mmap or equivalent"). The default
// implementation memory-maps the file on platforms x/sys/unix supports
// and falls back to an ordinary read elsewhere.
package resolver

import (
	"os"
	"path/filepath"
)

// Resolver turns an import path plus the importing file's directory
// into module source text and the directory subsequent relative
// imports from that module should resolve against.
type Resolver interface {
	Resolve(path string, fromDir string) (src string, dir string, err error)
}

// FileResolver resolves import paths as filesystem paths relative to
// the importing file, appending ".au" if the path carries no
// extension.
type FileResolver struct{}

func NewFileResolver() *FileResolver { return &FileResolver{} }

func (FileResolver) Resolve(path, fromDir string) (string, string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(fromDir, full)
	}
	if filepath.Ext(full) == "" {
		full += ".au"
	}
	data, err := readFile(full)
	if err != nil {
		return "", "", err
	}
	return string(data), filepath.Dir(full), nil
}

func readFile(path string) ([]byte, error) {
	if data, ok := mmapRead(path); ok {
		return data, nil
	}
	return os.ReadFile(path)
}

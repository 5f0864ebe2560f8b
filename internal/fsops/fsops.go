// Package fsops exposes thin interfaces over os and filepath helpers so the
// rest of the project can be tested without touching the real filesystem.
package fsops

//go:generate mockgen -source=fsops.go -destination=mocks/fsops.go -package=mocks

import (
	"io/fs"
	"os"
	"path/filepath"
)

// OSOps abstracts filesystem metadata queries and whole-file reads.
type OSOps interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
}

// DirWalker abstracts directory walking (e.g., filepath.WalkDir).
type DirWalker interface {
	WalkDir(root string, fn fs.WalkDirFunc) error
}

// Ops groups together the filesystem dependencies of the content hasher.
type Ops struct {
	OS     OSOps
	Walker DirWalker
}

// DefaultOps returns an Ops configured with the standard library implementations.
func DefaultOps() Ops {
	return Ops{
		OS:     stdOSOps{},
		Walker: stdDirWalker{},
	}
}

type stdOSOps struct{}

func (stdOSOps) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (stdOSOps) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }

type stdDirWalker struct{}

func (stdDirWalker) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

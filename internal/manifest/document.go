package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Replacement is a literal old -> new tag substitution.
type Replacement struct {
	Old string
	New string
}

// Document is a manifest file held in memory. Edits are plain text
// substitutions so formatting and comments survive byte for byte.
type Document struct {
	Path     string
	text     string
	original string
	mode     os.FileMode
}

// ReadDocument loads path into memory.
func ReadDocument(path string) (*Document, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return &Document{
		Path:     path,
		text:     string(data),
		original: string(data),
		mode:     fi.Mode().Perm(),
	}, nil
}

// Dir is the directory the document lives in.
func (d *Document) Dir() string {
	return filepath.Dir(d.Path)
}

// Bytes returns the current contents as bytes.
func (d *Document) Bytes() []byte {
	return []byte(d.text)
}

// Apply replaces every literal occurrence of each Old with its New, in order.
func (d *Document) Apply(replacements []Replacement) {
	d.text = Substitute(d.text, replacements)
}

// Changed reports whether Apply altered the text.
func (d *Document) Changed() bool {
	return d.text != d.original
}

// Save persists the document once, atomically, if it changed.
func (d *Document) Save() error {
	if !d.Changed() {
		return nil
	}
	if err := WriteFileAtomic(d.Path, d.Bytes(), d.mode); err != nil {
		return err
	}
	d.original = d.text
	return nil
}

// Substitute applies replacements to text sequentially.
func Substitute(text string, replacements []Replacement) string {
	for _, r := range replacements {
		if r.Old == "" || r.Old == r.New {
			continue
		}
		text = strings.ReplaceAll(text, r.Old, r.New)
	}
	return text
}

// WriteFileAtomic writes data next to path and renames it into place, so
// readers see either the old or the new file, never a partial one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("manifest: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("manifest: write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("manifest: chmod %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("manifest: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("manifest: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("manifest: rename into %s: %w", path, err)
	}
	return nil
}

// Package contenthash computes the content digest that versions an image:
// a seed string followed by the raw bytes of every input file.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/harvard-lil/docker-compose-update-action/internal/fsops"
	"github.com/harvard-lil/docker-compose-update-action/internal/logs"
)

// DigestLength is the number of hex characters kept from the SHA-256 digest.
const DigestLength = 32

// ErrInvalidInputPath is returned when a hash path is neither a regular file
// nor an existing directory.
var ErrInvalidInputPath = errors.New("hash path is not a file or directory")

// Hasher folds files and directories into a truncated SHA-256 digest.
type Hasher struct {
	ops fsops.Ops
}

// NewHasher builds a Hasher backed by the real filesystem.
func NewHasher() *Hasher {
	return NewHasherWithOps(fsops.DefaultOps())
}

// NewHasherWithOps allows injecting filesystem dependencies for testing.
func NewHasherWithOps(ops fsops.Ops) *Hasher {
	return &Hasher{ops: ops}
}

// Hash returns the first DigestLength hex characters of
// sha256(seed || content(f1) || content(f2) || ...).
//
// Paths are visited in lexicographic order of their components regardless of
// the order they were passed in; directories contribute every regular file
// beneath them in the same order. Only bytes are hashed: no names, no
// separators, no length prefixes. Tags minted by earlier tooling depend on
// exactly this layout.
func (h *Hasher) Hash(paths []string, seed string) (string, error) {
	sum := sha256.New()
	io.WriteString(sum, seed)

	for _, p := range sortedUnique(paths) {
		files, err := h.expand(p)
		if err != nil {
			return "", err
		}
		for _, f := range files {
			logs.Debugf("hashing %s", f)
			data, err := h.ops.OS.ReadFile(f)
			if err != nil {
				return "", fmt.Errorf("read %s: %w", f, err)
			}
			sum.Write(data)
		}
	}

	return hex.EncodeToString(sum.Sum(nil))[:DigestLength], nil
}

// expand resolves one hash path into the ordered list of files it covers.
func (h *Hasher) expand(path string) ([]string, error) {
	fi, err := h.ops.OS.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInputPath, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	switch {
	case fi.Mode().IsRegular():
		return []string{path}, nil
	case fi.IsDir():
		return h.walkFiles(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidInputPath, path)
	}
}

func (h *Hasher) walkFiles(root string) ([]string, error) {
	files, err := h.collect(root, map[string]bool{})
	if err != nil {
		return nil, err
	}

	// WalkDir is already lexical per directory; sort anyway so injected walkers
	// and followed links cannot change the digest.
	slices.SortFunc(files, comparePaths)
	return files, nil
}

// collect lists the regular files beneath root under their logical paths
// (root joined with the relative name), following symlinked directories.
// seen holds resolved directories so link cycles end.
func (h *Hasher) collect(root string, seen map[string]bool) ([]string, error) {
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		if seen[resolved] {
			logs.Debugf("skipping %s: already hashed as %s", root, resolved)
			return nil, nil
		}
		seen[resolved] = true
	}

	var files []string

	walkFn := func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
			return nil
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		fi, err := h.ops.OS.Stat(path)
		if err != nil {
			// dangling
			return nil
		}
		switch {
		case fi.Mode().IsRegular():
			files = append(files, path)
		case fi.IsDir():
			nested, err := h.collect(path, seen)
			if err != nil {
				return err
			}
			files = append(files, nested...)
		}
		return nil
	}

	// A trailing separator makes WalkDir descend into a symlinked root
	// instead of reporting the link itself.
	walkRoot := root
	if !strings.HasSuffix(walkRoot, string(filepath.Separator)) {
		walkRoot += string(filepath.Separator)
	}
	if err := h.ops.Walker.WalkDir(walkRoot, walkFn); err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

// sortedUnique cleans, de-duplicates and orders the requested paths.
func sortedUnique(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Clean(p))
	}
	slices.SortFunc(out, comparePaths)
	return slices.Compact(out)
}

// comparePaths orders paths component by component, which is the order a
// recursive directory walk produces ("a/b" sorts before "a-c").
func comparePaths(a, b string) int {
	return strings.Compare(componentKey(a), componentKey(b))
}

func componentKey(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), "/", "\x00")
}

// Package tags parses and bumps content-addressed image tags of the form
// image:MAJOR.MINOR-HASH (any number of dot-separated digit components).
package tags

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedTag is the sentinel wrapped by every Parse failure.
var ErrMalformedTag = errors.New("malformed tag")

// Tag is a parsed image:digits-hash reference.
type Tag struct {
	Image  string
	Digits []int
	Hash   string
}

// Parse splits text on the first ':' into image and version, then the version
// on its last '-' into digits and hash.
func Parse(text string) (Tag, error) {
	image, version, ok := strings.Cut(text, ":")
	if !ok {
		return Tag{}, fmt.Errorf("%w %q: missing ':' between image and version", ErrMalformedTag, text)
	}
	if image == "" {
		return Tag{}, fmt.Errorf("%w %q: empty image name", ErrMalformedTag, text)
	}

	idx := strings.LastIndex(version, "-")
	if idx < 0 {
		return Tag{}, fmt.Errorf("%w %q: missing '-' between version and hash", ErrMalformedTag, text)
	}
	digitsPart, hash := version[:idx], version[idx+1:]

	parts := strings.Split(digitsPart, ".")
	digits := make([]int, 0, len(parts))
	for _, p := range parts {
		if !isDigits(p) {
			return Tag{}, fmt.Errorf("%w %q: version component %q is not a non-negative integer", ErrMalformedTag, text, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Tag{}, fmt.Errorf("%w %q: version component %q: %v", ErrMalformedTag, text, p, err)
		}
		digits = append(digits, n)
	}

	return Tag{Image: image, Digits: digits, Hash: hash}, nil
}

// String formats the tag back into image:d1.d2-hash.
func (t Tag) String() string {
	return t.Image + ":" + t.Version()
}

// Version returns the registry-side tag name, d1.d2-hash.
func (t Tag) Version() string {
	return t.DigitsString() + "-" + t.Hash
}

// DigitsString returns the dot-joined digit components.
func (t Tag) DigitsString() string {
	parts := make([]string, len(t.Digits))
	for i, d := range t.Digits {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ".")
}

// Next returns a copy of t with the last digit incremented by one and hash
// attached. No other component changes and there is no carry.
func (t Tag) Next(hash string) Tag {
	digits := make([]int, len(t.Digits))
	copy(digits, t.Digits)
	if len(digits) > 0 {
		digits[len(digits)-1]++
	}
	return Tag{Image: t.Image, Digits: digits, Hash: hash}
}

// isDigits reports whether s is a non-empty run of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

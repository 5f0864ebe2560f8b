package registry

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/harvard-lil/docker-compose-update-action/internal/logs"
	"github.com/harvard-lil/docker-compose-update-action/internal/tags"
)

// NewerPublished returns the highest version among published registry tags
// that is greater than the version of tag, or "" if there is none. Only tags
// in the d1.d2...-hash form with at most three digit components take part.
func NewerPublished(tag string, published []string) string {
	current, err := tags.Parse(tag)
	if err != nil {
		return ""
	}
	cv, err := semver.NewVersion(current.DigitsString())
	if err != nil || len(current.Digits) > 3 {
		return ""
	}

	var (
		best    *semver.Version
		bestTag string
	)
	for _, p := range published {
		pt, err := tags.Parse(current.Image + ":" + p)
		if err != nil || len(pt.Digits) > 3 {
			continue
		}
		pv, err := semver.NewVersion(pt.DigitsString())
		if err != nil || !pv.GreaterThan(cv) {
			continue
		}
		if best == nil || pv.GreaterThan(best) {
			best, bestTag = pv, p
		}
	}
	return bestTag
}

func warnOnDrift(tag string, published []string) {
	if newer := NewerPublished(tag, published); newer != "" {
		image, _, _ := strings.Cut(tag, ":")
		logs.Warnf("registry already has %s:%s, newer than %s; was the manifest reverted?", image, newer, tag)
	}
}

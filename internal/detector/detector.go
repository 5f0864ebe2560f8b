// Package detector decides which services have stale tags.
package detector

import (
	"fmt"
	"path/filepath"

	"github.com/harvard-lil/docker-compose-update-action/internal/logs"
	"github.com/harvard-lil/docker-compose-update-action/internal/manifest"
	"github.com/harvard-lil/docker-compose-update-action/internal/tags"
)

// ContentHasher computes the digest of a set of paths plus a seed.
type ContentHasher interface {
	Hash(paths []string, seed string) (string, error)
}

// ChangeRecord is emitted for a service whose content hash no longer matches
// the hash embedded in its recorded tag.
type ChangeRecord struct {
	Service string
	OldTag  string
	NewTag  string
}

// ServiceTag pairs a hashed service with the tag it has after detection:
// the new tag when it changed, the recorded one otherwise.
type ServiceTag struct {
	Service string
	Tag     string
	Changed bool
}

// Detection is the outcome of one pass over the specs, both lists in input order.
type Detection struct {
	Changes  []ChangeRecord
	Services []ServiceTag
}

type Detector struct {
	hasher ContentHasher
}

func NewDetector(hasher ContentHasher) *Detector {
	return &Detector{hasher: hasher}
}

// Detect hashes every spec that declares hash paths and compares the digest
// with the hash suffix of its current tag. Any error aborts the whole pass.
func (d *Detector) Detect(specs []manifest.ServiceBuildSpec) (Detection, error) {
	var out Detection

	for _, spec := range specs {
		if !spec.Hashed() {
			logs.Debugf("skipping %s: no x-hash-paths", spec.Name)
			continue
		}
		logs.Infof("processing %s", spec.Name)

		hash, err := d.hasher.Hash(InputPaths(spec), spec.Metadata)
		if err != nil {
			return Detection{}, fmt.Errorf("service %s: %w", spec.Name, err)
		}

		current, err := tags.Parse(spec.CurrentTag)
		if err != nil {
			return Detection{}, fmt.Errorf("service %s: %w", spec.Name, err)
		}

		if current.Hash == hash {
			logs.Infof("%s is up to date (%s)", spec.Name, spec.CurrentTag)
			out.Services = append(out.Services, ServiceTag{Service: spec.Name, Tag: spec.CurrentTag})
			continue
		}

		next := current.Next(hash).String()
		logs.Infof("%s changed: %s -> %s", spec.Name, spec.CurrentTag, next)
		out.Changes = append(out.Changes, ChangeRecord{
			Service: spec.Name,
			OldTag:  spec.CurrentTag,
			NewTag:  next,
		})
		out.Services = append(out.Services, ServiceTag{Service: spec.Name, Tag: next, Changed: true})
	}

	return out, nil
}

// InputPaths is the path set hashed for spec: its Dockerfile plus every hash
// path, all under the build context. The hasher de-duplicates and orders them.
func InputPaths(spec manifest.ServiceBuildSpec) []string {
	paths := make([]string, 0, len(spec.HashPaths)+1)
	paths = append(paths, filepath.Join(spec.Context, spec.Dockerfile))
	for _, p := range spec.HashPaths {
		paths = append(paths, filepath.Join(spec.Context, p))
	}
	return paths
}

// Package manifest reads the compose override document into build specs and
// rewrites manifest text in place.
package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultContext    = "."
	DefaultDockerfile = "Dockerfile"

	keyServices   = "services"
	keyBuild      = "build"
	keyContext    = "context"
	keyDockerfile = "dockerfile"
	keyBake       = "x-bake"
	keyBakeTags   = "tags"
	keyHashPaths  = "x-hash-paths"
)

// ErrMissingTag is returned for a hashed service that declares no x-bake tag.
var ErrMissingTag = errors.New("no x-bake tag declared")

// ServiceBuildSpec is one service of the override document.
type ServiceBuildSpec struct {
	Name string
	// Context is the build context resolved against the override's directory.
	Context string
	// Dockerfile is relative to Context.
	Dockerfile string
	// HashPaths are relative to Context, in declaration order.
	HashPaths  []string
	CurrentTag string
	// Metadata is the textual form of the build mapping without its tag list.
	// It seeds the content hash so non-path settings (build args, targets)
	// version the image too.
	Metadata string
}

// Hashed reports whether the service takes part in tagging.
func (s ServiceBuildSpec) Hashed() bool {
	return len(s.HashPaths) > 0
}

// OverridePath derives the override document path from the compose path by
// replacing its extension: docker-compose.yml -> docker-compose.override.yml.
func OverridePath(composePath string) string {
	return strings.TrimSuffix(composePath, filepath.Ext(composePath)) + ".override.yml"
}

// ParseOverride parses the override document. baseDir is the directory the
// document lives in; build contexts are resolved against it. Services are
// returned in declaration order, hashed or not.
func ParseOverride(baseDir string, data []byte) ([]ServiceBuildSpec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse override: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := resolveAlias(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse override: top level is not a mapping")
	}

	services := lookup(root, keyServices)
	if services == nil {
		return nil, nil
	}
	if services.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse override: %q is not a mapping", keyServices)
	}

	specs := make([]ServiceBuildSpec, 0, len(services.Content)/2)
	for i := 0; i+1 < len(services.Content); i += 2 {
		name := services.Content[i].Value
		spec, err := parseService(baseDir, name, resolveAlias(services.Content[i+1]))
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseService(baseDir, name string, service *yaml.Node) (ServiceBuildSpec, error) {
	spec := ServiceBuildSpec{Name: name}
	if service.Kind != yaml.MappingNode {
		return spec, nil
	}

	build := lookup(service, keyBuild)
	// short syntax (build: ./dir) carries no hash paths
	if build == nil || build.Kind != yaml.MappingNode {
		return spec, nil
	}

	context, err := scalarOr(build, keyContext, DefaultContext)
	if err != nil {
		return spec, err
	}
	dockerfile, err := scalarOr(build, keyDockerfile, DefaultDockerfile)
	if err != nil {
		return spec, err
	}
	spec.Context = filepath.Join(baseDir, context)
	spec.Dockerfile = dockerfile

	if hashPaths := lookup(build, keyHashPaths); hashPaths != nil {
		spec.HashPaths, err = scalarList(hashPaths)
		if err != nil {
			return spec, fmt.Errorf("%s: %w", keyHashPaths, err)
		}
	}
	if !spec.Hashed() {
		return spec, nil
	}

	bake := lookup(build, keyBake)
	if bake == nil || bake.Kind != yaml.MappingNode {
		return spec, fmt.Errorf("%w (%s.%s)", ErrMissingTag, keyBake, keyBakeTags)
	}
	bakeTags := lookup(bake, keyBakeTags)
	if bakeTags == nil {
		return spec, fmt.Errorf("%w (%s.%s)", ErrMissingTag, keyBake, keyBakeTags)
	}
	tagList, err := scalarList(bakeTags)
	if err != nil {
		return spec, fmt.Errorf("%s.%s: %w", keyBake, keyBakeTags, err)
	}
	if len(tagList) == 0 {
		return spec, fmt.Errorf("%w (%s.%s is empty)", ErrMissingTag, keyBake, keyBakeTags)
	}
	spec.CurrentTag = tagList[0]
	spec.Metadata = renderBuildMetadata(build)

	return spec, nil
}

// lookup returns the value node for key in a mapping, or nil.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return resolveAlias(mapping.Content[i+1])
		}
	}
	return nil
}

func scalarOr(mapping *yaml.Node, key, def string) (string, error) {
	n := lookup(mapping, key)
	if n == nil {
		return def, nil
	}
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("%s is not a scalar", key)
	}
	return n.Value, nil
}

func scalarList(n *yaml.Node) ([]string, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, errors.New("expected a list")
	}
	out := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		item = resolveAlias(item)
		if item.Kind != yaml.ScalarNode {
			return nil, errors.New("expected a list of strings")
		}
		out = append(out, item.Value)
	}
	return out, nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

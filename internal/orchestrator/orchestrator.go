// Package orchestrator runs one tag update: detect changes, rewrite both
// compose manifests, and decide which services need a rebuild.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/harvard-lil/docker-compose-update-action/internal/contenthash"
	"github.com/harvard-lil/docker-compose-update-action/internal/detector"
	"github.com/harvard-lil/docker-compose-update-action/internal/logs"
	"github.com/harvard-lil/docker-compose-update-action/internal/manifest"
	"github.com/harvard-lil/docker-compose-update-action/internal/registry"
	"github.com/harvard-lil/docker-compose-update-action/internal/state"
)

// OutputName is the GitHub Actions output the rebuild list is published under.
const OutputName = "services-to-rebuild"

type Action string

const (
	// ActionLoad rebuilds only changed services whose new tag is unpublished.
	ActionLoad Action = "load"
	// ActionPush rebuilds every hashed service whose tag is unpublished.
	ActionPush Action = "push"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionLoad, ActionPush:
		return a, nil
	case "":
		return ActionLoad, nil
	}
	return "", fmt.Errorf("unknown action %q (want load or push)", s)
}

type Config struct {
	ComposePath string
	// OverridePath defaults to OverridePath(ComposePath).
	OverridePath string
	Action       Action
	// DryRun computes everything but leaves the manifests untouched.
	DryRun bool
	// ProbeTimeout bounds each registry check; zero means no extra bound.
	ProbeTimeout time.Duration
}

func (c Config) overridePath() string {
	if c.OverridePath != "" {
		return c.OverridePath
	}
	return manifest.OverridePath(c.ComposePath)
}

// HistoryRecorder receives the per-service decisions of a successful run.
type HistoryRecorder interface {
	Record(ctx context.Context, override string, entries []state.HistoryEntry) error
}

// ChangeDetector is satisfied by *detector.Detector.
type ChangeDetector interface {
	Detect(specs []manifest.ServiceBuildSpec) (detector.Detection, error)
}

type Option func(*Orchestrator)

func WithHistory(h HistoryRecorder) Option {
	return func(o *Orchestrator) { o.history = h }
}

func WithDetector(d ChangeDetector) Option {
	return func(o *Orchestrator) { o.detector = d }
}

type Orchestrator struct {
	cfg      Config
	probe    registry.Probe
	detector ChangeDetector
	history  HistoryRecorder
}

func New(cfg Config, probe registry.Probe, opts ...Option) *Orchestrator {
	if cfg.Action == "" {
		cfg.Action = ActionLoad
	}
	o := &Orchestrator{
		cfg:      cfg,
		probe:    probe,
		detector: detector.NewDetector(contenthash.NewHasher()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result is what a run reports back.
type Result struct {
	Changes []detector.ChangeRecord
	// Rebuild lists services in override declaration order.
	Rebuild []string
}

// Value is the space-separated rebuild list.
func (r Result) Value() string {
	return strings.Join(r.Rebuild, " ")
}

// OutputLine renders the workflow command consumed by the calling workflow.
func (r Result) OutputLine() string {
	return fmt.Sprintf("::set-output name=%s::%s", OutputName, r.Value())
}

// Run performs one update. Manifests are only written once every hash has
// been computed; any earlier failure leaves both files untouched.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	if o.cfg.ComposePath == "" {
		return Result{}, fmt.Errorf("compose file path is required")
	}
	overridePath := o.cfg.overridePath()
	logs.Infof("processing %s (override %s)", o.cfg.ComposePath, overridePath)

	compose, err := manifest.ReadDocument(o.cfg.ComposePath)
	if err != nil {
		return Result{}, err
	}
	override, err := manifest.ReadDocument(overridePath)
	if err != nil {
		return Result{}, err
	}

	specs, err := manifest.ParseOverride(override.Dir(), override.Bytes())
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", overridePath, err)
	}

	detection, err := o.detector.Detect(specs)
	if err != nil {
		return Result{}, err
	}

	if err := o.rewrite(detection.Changes, compose, override); err != nil {
		return Result{}, err
	}

	rebuild, err := o.decide(ctx, detection)
	if err != nil {
		return Result{}, err
	}

	result := Result{Changes: detection.Changes}
	for _, st := range detection.Services {
		if rebuild[st.Service] {
			result.Rebuild = append(result.Rebuild, st.Service)
		}
	}
	logs.Infof("services to rebuild: [%s]", result.Value())

	o.record(ctx, overridePath, specs, detection, rebuild)
	return result, nil
}

func (o *Orchestrator) rewrite(changes []detector.ChangeRecord, docs ...*manifest.Document) error {
	if len(changes) == 0 {
		return nil
	}

	replacements := make([]manifest.Replacement, 0, len(changes))
	for _, c := range changes {
		logs.Infof("updating %s from %s to %s", c.Service, c.OldTag, c.NewTag)
		replacements = append(replacements, manifest.Replacement{Old: c.OldTag, New: c.NewTag})
	}

	for _, doc := range docs {
		doc.Apply(replacements)
	}
	if o.cfg.DryRun {
		logs.Infof("dry run: not writing manifests")
		return nil
	}
	for _, doc := range docs {
		if err := doc.Save(); err != nil {
			return err
		}
	}
	return nil
}

// decide asks the registry about the candidate tags for the configured action.
func (o *Orchestrator) decide(ctx context.Context, d detector.Detection) (map[string]bool, error) {
	type candidate struct{ service, tag string }
	var candidates []candidate

	switch o.cfg.Action {
	case ActionPush:
		for _, st := range d.Services {
			candidates = append(candidates, candidate{st.Service, st.Tag})
		}
	case ActionLoad:
		for _, c := range d.Changes {
			candidates = append(candidates, candidate{c.Service, c.NewTag})
		}
	default:
		return nil, fmt.Errorf("unknown action %q", o.cfg.Action)
	}

	rebuild := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		exists, err := o.exists(ctx, c.tag)
		if err != nil {
			return nil, fmt.Errorf("check %s for %s: %w", c.tag, c.service, err)
		}
		logs.Debugf("%s exists in registry: %t", c.tag, exists)
		rebuild[c.service] = !exists
	}
	return rebuild, nil
}

func (o *Orchestrator) exists(ctx context.Context, tag string) (bool, error) {
	if o.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ProbeTimeout)
		defer cancel()
	}
	return o.probe.Exists(ctx, tag)
}

// record is best effort: a broken history store never fails the run.
func (o *Orchestrator) record(ctx context.Context, overridePath string, specs []manifest.ServiceBuildSpec, d detector.Detection, rebuild map[string]bool) {
	if o.history == nil || o.cfg.DryRun {
		return
	}

	current := make(map[string]string, len(specs))
	for _, s := range specs {
		current[s.Name] = s.CurrentTag
	}

	now := time.Now().UTC()
	entries := make([]state.HistoryEntry, 0, len(d.Services))
	for _, st := range d.Services {
		entries = append(entries, state.HistoryEntry{
			Service: st.Service,
			OldTag:  current[st.Service],
			NewTag:  st.Tag,
			Rebuild: rebuild[st.Service],
			At:      now,
		})
	}

	if err := o.history.Record(ctx, overridePath, entries); err != nil {
		logs.Warnf("could not record run history: %v", err)
	}
}

// AppendGitHubOutput appends name=value to the file GitHub Actions reads
// step outputs from.
func AppendGitHubOutput(path string, r Result) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "%s=%s\n", OutputName, r.Value()); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

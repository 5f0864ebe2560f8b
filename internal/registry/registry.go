// Package registry answers whether an image tag has already been published.
package registry

//go:generate mockgen -source=registry.go -destination=mocks/registry.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harvard-lil/docker-compose-update-action/internal/logs"
)

// ErrProbeUnavailable means the existence check could not be completed. It
// never means the tag is missing.
var ErrProbeUnavailable = errors.New("registry probe unavailable")

// DefaultTimeout bounds a single Exists call.
const DefaultTimeout = 30 * time.Second

// Probe reports whether tag is present in its registry. A definite "not found"
// is (false, nil); anything else that prevents an answer wraps ErrProbeUnavailable.
type Probe interface {
	Exists(ctx context.Context, tag string) (bool, error)
}

// Strategy selects how the registry is asked.
type Strategy string

const (
	// StrategyRegistry talks to the registry HTTP API directly.
	StrategyRegistry Strategy = "registry"
	// StrategyCLI shells out to `docker manifest inspect`.
	StrategyCLI Strategy = "cli"
	// StrategyDaemon asks the local Docker Engine to resolve the manifest.
	StrategyDaemon Strategy = "daemon"
)

// UnavailablePolicy decides what an unavailable probe means for the run.
type UnavailablePolicy string

const (
	// PolicyFail aborts the run.
	PolicyFail UnavailablePolicy = "fail"
	// PolicyRebuild treats the tag as missing so the service gets rebuilt.
	PolicyRebuild UnavailablePolicy = "rebuild"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyRegistry, StrategyCLI, StrategyDaemon:
		return st, nil
	case "":
		return StrategyRegistry, nil
	}
	return "", fmt.Errorf("unknown probe strategy %q (want registry, cli or daemon)", s)
}

func ParsePolicy(s string) (UnavailablePolicy, error) {
	switch p := UnavailablePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFail, PolicyRebuild:
		return p, nil
	case "":
		return PolicyFail, nil
	}
	return "", fmt.Errorf("unknown probe error policy %q (want fail or rebuild)", s)
}

// Credentials authenticate against the registry or its token service.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) empty() bool {
	return c.Username == "" && c.Password == ""
}

// Options configures New.
type Options struct {
	Strategy    Strategy
	Policy      UnavailablePolicy
	Timeout     time.Duration
	Credentials Credentials

	// HTTPClient overrides the client used by the registry strategy.
	HTTPClient *http.Client
}

// New builds the probe for opts.Strategy, wrapped with the unavailable policy
// and the per-call timeout.
func New(ctx context.Context, opts Options) (Probe, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	var (
		probe Probe
		err   error
	)
	switch opts.Strategy {
	case StrategyRegistry, "":
		probe = NewHTTPProbe(opts.HTTPClient, opts.Timeout, opts.Credentials)
	case StrategyCLI:
		probe = NewCLIProbe(nil)
	case StrategyDaemon:
		probe, err = NewDaemonProbe(ctx, opts.Credentials)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown probe strategy %q", opts.Strategy)
	}

	logs.Debugf("registry probe: strategy=%s policy=%s timeout=%s", opts.Strategy, opts.Policy, opts.Timeout)
	return WithPolicy(probe, opts.Policy, opts.Timeout), nil
}

type policyProbe struct {
	inner   Probe
	policy  UnavailablePolicy
	timeout time.Duration
}

// WithPolicy bounds every call to inner by timeout (when positive) and
// resolves ErrProbeUnavailable according to policy. No policy turns a failure
// into "exists".
func WithPolicy(inner Probe, policy UnavailablePolicy, timeout time.Duration) Probe {
	if policy == "" {
		policy = PolicyFail
	}
	return &policyProbe{inner: inner, policy: policy, timeout: timeout}
}

func (p *policyProbe) Exists(ctx context.Context, tag string) (bool, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	exists, err := p.inner.Exists(ctx, tag)
	if err == nil {
		return exists, nil
	}
	if ctx.Err() != nil && !errors.Is(err, ErrProbeUnavailable) {
		err = fmt.Errorf("%w: %s: %w", ErrProbeUnavailable, tag, err)
	}
	if !errors.Is(err, ErrProbeUnavailable) || p.policy != PolicyRebuild {
		return false, err
	}

	logs.Warnf("could not check %s, scheduling a rebuild: %v", tag, err)
	return false, nil
}

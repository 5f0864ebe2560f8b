package registry

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/harvard-lil/docker-compose-update-action/internal/logs"
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// exitCoder is satisfied by *exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

var notFoundMarkers = []string{"no such manifest", "manifest unknown", "not found"}

// CLIProbe asks `docker manifest inspect`, which uses the credentials of the
// local docker login.
type CLIProbe struct {
	runner Runner
	binary string
}

// NewCLIProbe uses runner, or os/exec when nil.
func NewCLIProbe(runner Runner) *CLIProbe {
	if runner == nil {
		runner = execRunner{}
	}
	return &CLIProbe{runner: runner, binary: "docker"}
}

func (p *CLIProbe) Exists(ctx context.Context, tag string) (bool, error) {
	args := []string{"manifest", "inspect", tag}
	logs.Debugf("running %s %s", p.binary, strings.Join(args, " "))

	out, err := p.runner.Run(ctx, p.binary, args...)
	if err == nil {
		return true, nil
	}

	var exitErr exitCoder
	if !errors.As(err, &exitErr) {
		return false, fmt.Errorf("%w: %s manifest inspect %s: %w", ErrProbeUnavailable, p.binary, tag, err)
	}

	text := strings.ToLower(string(out))
	for _, marker := range notFoundMarkers {
		if strings.Contains(text, marker) {
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s manifest inspect %s (exit=%d): %s",
		ErrProbeUnavailable, p.binary, tag, exitErr.ExitCode(), strings.TrimSpace(string(out)))
}

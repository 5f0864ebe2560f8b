package registry

//go:generate mockgen -source=daemon.go -destination=mocks/daemon.go -package=mocks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/docker/go-sdk/client"
)

// DistributionInspector is the slice of the Docker Engine API the daemon
// strategy needs.
type DistributionInspector interface {
	DistributionInspect(ctx context.Context, imageRef, encodedRegistryAuth string) (registrytypes.DistributionInspect, error)
}

// DaemonProbe lets the local Docker Engine resolve the manifest, so the
// engine's registry mirrors and credential helpers apply.
type DaemonProbe struct {
	inspector DistributionInspector
	auth      string
}

// NewDaemonProbe connects to the engine from the environment (DOCKER_HOST,
// docker contexts).
func NewDaemonProbe(ctx context.Context, creds Credentials) (*DaemonProbe, error) {
	sdk, err := client.New(
		ctx,
		client.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to docker engine: %w", err)
	}
	return NewDaemonProbeWithInspector(sdk, creds)
}

func NewDaemonProbeWithInspector(inspector DistributionInspector, creds Credentials) (*DaemonProbe, error) {
	p := &DaemonProbe{inspector: inspector}
	if !creds.empty() {
		auth, err := registrytypes.EncodeAuthConfig(registrytypes.AuthConfig{
			Username: creds.Username,
			Password: creds.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("encode registry auth: %w", err)
		}
		p.auth = auth
	}
	return p, nil
}

func (p *DaemonProbe) Exists(ctx context.Context, tag string) (bool, error) {
	_, err := p.inspector.DistributionInspect(ctx, tag, p.auth)
	if err == nil {
		return true, nil
	}
	if cerrdefs.IsNotFound(err) || strings.Contains(strings.ToLower(err.Error()), "manifest unknown") {
		return false, nil
	}
	return false, fmt.Errorf("%w: inspect %s: %w", ErrProbeUnavailable, tag, err)
}

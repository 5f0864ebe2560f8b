package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/harvard-lil/docker-compose-update-action/internal/registry/mocks"
)

type fakeExit int

func (e fakeExit) Error() string { return "exit status" }
func (e fakeExit) ExitCode() int { return int(e) }

type fakeRunner struct {
	out  string
	err  error
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.args = append([]string{name}, args...)
	return []byte(f.out), f.err
}

func TestCLIProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		runner     *fakeRunner
		wantExists bool
		wantErr    error
	}{
		{name: "exists", runner: &fakeRunner{out: `{"schemaVersion": 2}`}, wantExists: true},
		{name: "no such manifest", runner: &fakeRunner{out: "no such manifest: docker.io/library/web:1-abc", err: fakeExit(1)}},
		{name: "manifest unknown", runner: &fakeRunner{out: "manifest unknown: manifest unknown", err: fakeExit(1)}},
		{name: "not found", runner: &fakeRunner{out: "Error: Not Found", err: fakeExit(1)}},
		{name: "auth failure", runner: &fakeRunner{out: "unauthorized: authentication required", err: fakeExit(1)}, wantErr: ErrProbeUnavailable},
		{name: "cannot start", runner: &fakeRunner{err: errors.New(`exec: "docker": executable file not found in $PATH`)}, wantErr: ErrProbeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exists, err := NewCLIProbe(tt.runner).Exists(context.Background(), "web:1-abc")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExists, exists)
			assert.Equal(t, []string{"docker", "manifest", "inspect", "web:1-abc"}, tt.runner.args)
		})
	}
}

func TestDaemonProbe(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inspector := mocks.NewMockDistributionInspector(ctrl)

	probe, err := NewDaemonProbeWithInspector(inspector, Credentials{})
	require.NoError(t, err)

	gomock.InOrder(
		inspector.EXPECT().DistributionInspect(gomock.Any(), "web:1-abc", "").
			Return(registrytypes.DistributionInspect{}, nil),
		inspector.EXPECT().DistributionInspect(gomock.Any(), "web:2-def", "").
			Return(registrytypes.DistributionInspect{}, cerrdefs.ErrNotFound),
		inspector.EXPECT().DistributionInspect(gomock.Any(), "web:3-ghi", "").
			Return(registrytypes.DistributionInspect{}, errors.New("Cannot connect to the Docker daemon")),
	)

	exists, err := probe.Exists(context.Background(), "web:1-abc")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = probe.Exists(context.Background(), "web:2-def")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = probe.Exists(context.Background(), "web:3-ghi")
	assert.ErrorIs(t, err, ErrProbeUnavailable)
}

func TestDaemonProbeSendsCredentials(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inspector := mocks.NewMockDistributionInspector(ctrl)

	probe, err := NewDaemonProbeWithInspector(inspector, Credentials{Username: "ci", Password: "secret"})
	require.NoError(t, err)

	inspector.EXPECT().DistributionInspect(gomock.Any(), "web:1-abc", gomock.Not("")).
		DoAndReturn(func(_ context.Context, _ string, auth string) (registrytypes.DistributionInspect, error) {
			cfg, err := registrytypes.DecodeAuthConfig(auth)
			require.NoError(t, err)
			assert.Equal(t, "ci", cfg.Username)
			assert.Equal(t, "secret", cfg.Password)
			return registrytypes.DistributionInspect{}, nil
		})

	exists, err := probe.Exists(context.Background(), "web:1-abc")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWithPolicy(t *testing.T) {
	t.Parallel()

	unavailable := errors.Join(ErrProbeUnavailable, errors.New("timeout"))

	tests := []struct {
		name       string
		policy     UnavailablePolicy
		ret        error
		retExists  bool
		wantExists bool
		wantErr    error
	}{
		{name: "passes through exists", policy: PolicyFail, retExists: true, wantExists: true},
		{name: "passes through missing", policy: PolicyRebuild},
		{name: "fail propagates", policy: PolicyFail, ret: unavailable, wantErr: ErrProbeUnavailable},
		{name: "default is fail", ret: unavailable, wantErr: ErrProbeUnavailable},
		{name: "rebuild treats as missing", policy: PolicyRebuild, ret: unavailable},
		{name: "rebuild keeps other errors", policy: PolicyRebuild, ret: errors.New("bad reference"), wantErr: errors.New("bad reference")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			inner := mocks.NewMockProbe(ctrl)
			inner.EXPECT().Exists(gomock.Any(), "web:1-abc").Return(tt.retExists, tt.ret)

			exists, err := WithPolicy(inner, tt.policy, time.Second).Exists(context.Background(), "web:1-abc")
			assert.Equal(t, tt.wantExists, exists)
			switch {
			case tt.wantErr == nil:
				assert.NoError(t, err)
			case errors.Is(tt.wantErr, ErrProbeUnavailable):
				assert.ErrorIs(t, err, ErrProbeUnavailable)
			default:
				assert.EqualError(t, err, tt.wantErr.Error())
			}
		})
	}
}

func TestWithPolicyAppliesTimeout(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockProbe(ctrl)
	inner.EXPECT().Exists(gomock.Any(), "web:1-abc").
		DoAndReturn(func(ctx context.Context, _ string) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		})

	_, err := WithPolicy(inner, PolicyFail, 10*time.Millisecond).Exists(context.Background(), "web:1-abc")
	assert.ErrorIs(t, err, ErrProbeUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseStrategyAndPolicy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Strategy{"": StrategyRegistry, "registry": StrategyRegistry, "CLI": StrategyCLI, " daemon ": StrategyDaemon} {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseStrategy("ssh")
	assert.Error(t, err)

	for in, want := range map[string]UnavailablePolicy{"": PolicyFail, "fail": PolicyFail, "Rebuild": PolicyRebuild} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err = ParsePolicy("exists")
	assert.Error(t, err)
}

func TestNewBuildsConfiguredStrategy(t *testing.T) {
	t.Parallel()

	p, err := New(context.Background(), Options{Strategy: StrategyRegistry})
	require.NoError(t, err)
	pp, ok := p.(*policyProbe)
	require.True(t, ok)
	assert.IsType(t, &HTTPProbe{}, pp.inner)
	assert.Equal(t, PolicyFail, pp.policy)
	assert.Equal(t, DefaultTimeout, pp.timeout)

	p, err = New(context.Background(), Options{Strategy: StrategyCLI, Policy: PolicyRebuild, Timeout: time.Second})
	require.NoError(t, err)
	pp = p.(*policyProbe)
	assert.IsType(t, &CLIProbe{}, pp.inner)
	assert.Equal(t, PolicyRebuild, pp.policy)

	_, err = New(context.Background(), Options{Strategy: "ftp"})
	assert.Error(t, err)
}

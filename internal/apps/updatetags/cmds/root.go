package cmds

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harvard-lil/docker-compose-update-action/internal/logs"
	"github.com/harvard-lil/docker-compose-update-action/internal/orchestrator"
	"github.com/harvard-lil/docker-compose-update-action/internal/registry"
	"github.com/harvard-lil/docker-compose-update-action/internal/runtime"
	"github.com/harvard-lil/docker-compose-update-action/internal/state"
)

const (
	envRegistryUsername = "REGISTRY_USERNAME"
	envRegistryPassword = "REGISTRY_PASSWORD"
	envGitHubOutput     = "GITHUB_OUTPUT"
)

// newProbe is swapped out in tests.
var newProbe = registry.New

type rootOptions struct {
	verbosity    int
	action       string
	composePath  string
	overridePath string
	probe        string
	onProbeError string
	probeTimeout time.Duration
	dryRun       bool
	envFile      string
	stateDB      string
}

func Execute(rt *runtime.Runtime) error {
	return newRootCmd().ExecuteContext(rt.Ctx())
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "update-tags",
		Short: "Bump content-addressed image tags in docker compose files",
		Long: `update-tags hashes the build inputs of every service in docker-compose.override.yml
that declares x-hash-paths, bumps the tag of each service whose inputs changed in both
compose files, and prints the services that need to be rebuilt:

  ::set-output name=services-to-rebuild::web worker

With -a push, every hashed service whose tag is not in the registry is listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts)
		},

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logs.SetDebugVerbosity(opts.verbosity)
			return nil
		},
		// we will handle that
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "increase verbosity level")

	f := rootCmd.Flags()
	f.StringVarP(&opts.action, "action", "a", string(orchestrator.ActionLoad), "buildx bake action: load (check changed services) or push (check every service)")
	f.StringVarP(&opts.composePath, "file", "f", "docker-compose.yml", "path to docker-compose.yml")
	f.StringVar(&opts.overridePath, "override", "", "path to the override file (default: <file> with .override.yml extension)")
	f.StringVar(&opts.probe, "probe", string(registry.StrategyRegistry), "how to check the registry: registry, cli or daemon")
	f.StringVar(&opts.onProbeError, "on-probe-error", string(registry.PolicyFail), "when the registry cannot be checked: fail or rebuild")
	f.DurationVar(&opts.probeTimeout, "probe-timeout", registry.DefaultTimeout, "timeout for each registry check")
	f.BoolVar(&opts.dryRun, "dry-run", false, "compute new tags without rewriting the compose files")
	f.StringVar(&opts.envFile, "env-file", "", "dotenv file with "+envRegistryUsername+"/"+envRegistryPassword)
	f.StringVar(&opts.stateDB, "state-db", "", "sqlite file to record per-service decisions in")

	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func runUpdate(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()

	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", opts.envFile, err)
		}
	}

	action, err := orchestrator.ParseAction(opts.action)
	if err != nil {
		return err
	}
	strategy, err := registry.ParseStrategy(opts.probe)
	if err != nil {
		return err
	}
	policy, err := registry.ParsePolicy(opts.onProbeError)
	if err != nil {
		return err
	}

	probe, err := newProbe(ctx, registry.Options{
		Strategy: strategy,
		Policy:   policy,
		Timeout:  opts.probeTimeout,
		Credentials: registry.Credentials{
			Username: os.Getenv(envRegistryUsername),
			Password: os.Getenv(envRegistryPassword),
		},
	})
	if err != nil {
		return err
	}

	var orchOpts []orchestrator.Option
	if opts.stateDB != "" {
		history, closeDB, err := state.OpenHistory(ctx, opts.stateDB)
		if err != nil {
			return err
		}
		closeOnShutdown(ctx, opts.stateDB, closeDB)
		orchOpts = append(orchOpts, orchestrator.WithHistory(history))
	}

	result, err := orchestrator.New(orchestrator.Config{
		ComposePath:  opts.composePath,
		OverridePath: opts.overridePath,
		Action:       action,
		DryRun:       opts.dryRun,
		ProbeTimeout: opts.probeTimeout,
	}, probe, orchOpts...).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.OutputLine())

	if path := os.Getenv(envGitHubOutput); path != "" {
		if err := orchestrator.AppendGitHubOutput(path, result); err != nil {
			return err
		}
	}
	return nil
}

// closeOnShutdown defers closeFn to the runtime's shutdown hooks, which run
// once the command returns or the process is interrupted.
func closeOnShutdown(ctx context.Context, what string, closeFn func() error) {
	runtime.FromContextOrPanic(ctx).OnShutdown(func(context.Context) {
		if err := closeFn(); err != nil {
			logs.Warnf("close %s: %v", what, err)
		}
	})
}

package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/harvard-lil/docker-compose-update-action/internal/logs"
)

// Runtime owns the process-wide context: it is cancelled on SIGINT/SIGTERM
// and when Finalize runs, which also fires OnShutdown hooks.
type Runtime struct {
	ctx        context.Context    // global context
	cancelFunc context.CancelFunc // cancelFunc of global context
	stopSignal context.CancelFunc

	mu sync.Mutex

	wg              sync.WaitGroup
	shutdownTimeout time.Duration

	firstFailErr error
	exit         func(code int)
}

func (rt *Runtime) CancelCtx() {
	rt.cancelFunc()
}

func (rt *Runtime) Ctx() context.Context {
	return rt.ctx
}

type runtimeKey struct{}

func New() *Runtime {
	baseCtx, cancel := context.WithCancel(context.Background())
	signalCtx, stop := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)

	rt := &Runtime{
		cancelFunc:      cancel,
		stopSignal:      stop,
		shutdownTimeout: 5 * time.Second,
		exit:            os.Exit,
	}
	// Commands load the runtime from their context once, at the cmd handler.
	rt.ctx = context.WithValue(signalCtx, runtimeKey{}, rt)
	return rt
}

func FromContext(ctx context.Context) *Runtime {
	v := ctx.Value(runtimeKey{})
	if v == nil {
		return nil
	}
	rt, _ := v.(*Runtime)
	return rt
}

func FromContextOrPanic(ctx context.Context) *Runtime {
	rt := FromContext(ctx)
	if rt == nil {
		panic(errors.New("runtime not found in this context"))
	}
	return rt
}

// GoNamed runs fn in a new goroutine, with panic recovery. The first panic is
// recorded, cancels the context, and is returned by Wait.
func (rt *Runtime) GoNamed(name string, fn func()) {
	if name == "" {
		name = "anonymous"
	}
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		logs.Debugf("%s goroutine start", name)
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in %s: %v\n%s", name, r, debug.Stack())
				rt.mu.Lock()
				if rt.firstFailErr == nil {
					rt.firstFailErr = err
					rt.cancelFunc()
				}
				rt.mu.Unlock()
			}
		}()

		fn()
		logs.Debugf("%s goroutine finish", name)
	}()
}

func (rt *Runtime) Wait() error {
	rt.wg.Wait()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.firstFailErr
}

// OnShutdown runs fn once the runtime context is cancelled, with a fresh
// context bounded by the shutdown timeout.
func (rt *Runtime) OnShutdown(fn func(ctx context.Context)) {
	rt.GoNamed("OnShutdown", func() {
		<-rt.ctx.Done()

		cleanupCtx, cancel := context.WithTimeout(context.Background(), rt.shutdownTimeout)
		defer cancel()

		fn(cleanupCtx)
	})
}

// Finalize handles both panic and normal exit.
// Call it in a defer at the top of main. A non-nil *execErr exits with 1.
func (rt *Runtime) Finalize(appName, helpHint string, execErr *error) {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "%s panic: %v\n", appName, r)
		fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
		if helpHint != "" {
			fmt.Fprintln(os.Stderr, helpHint)
		}

		rt.Shutdown()
		rt.exit(1)
		return
	}

	waitErr := rt.Shutdown()

	switch {
	case execErr != nil && *execErr != nil:
		logs.Errorf("%s error: %v", appName, *execErr)
		if helpHint != "" {
			fmt.Fprintln(os.Stderr, helpHint)
		}
		rt.exit(1)
	case waitErr != nil:
		logs.Errorf("%s fail reason: %v", appName, waitErr)
		rt.exit(1)
	}
}

// Shutdown cancels the context so OnShutdown hooks run, then waits for them.
// Finalize calls it; callers that never reach Finalize call it directly.
func (rt *Runtime) Shutdown() error {
	rt.stopSignal()
	rt.CancelCtx()
	return rt.Wait()
}

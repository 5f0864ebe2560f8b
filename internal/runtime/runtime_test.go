package runtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRuntime() (*Runtime, *int) {
	rt := New()
	code := -1
	rt.exit = func(c int) { code = c }
	return rt, &code
}

func TestFromContext(t *testing.T) {
	rt, _ := newTestRuntime()
	defer rt.Shutdown()

	if got := FromContext(rt.Ctx()); got != rt {
		t.Fatalf("FromContext returned %p, want %p", got, rt)
	}
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected nil runtime for a bare context")
	}
}

func TestFromContextOrPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	FromContextOrPanic(context.Background())
}

func TestFinalizeRunsShutdownHooks(t *testing.T) {
	rt, code := newTestRuntime()

	done := make(chan struct{})
	rt.OnShutdown(func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("shutdown context has no deadline")
		}
		close(done)
	})

	var execErr error
	rt.Finalize("update-tags", "", &execErr)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("shutdown hook did not run")
	}
	if *code != -1 {
		t.Fatalf("exit called with %d on success", *code)
	}
}

func TestFinalizeExitsOnError(t *testing.T) {
	rt, code := newTestRuntime()

	execErr := errors.New("boom")
	rt.Finalize("update-tags", "Run 'update-tags --help' for usage.", &execErr)

	if *code != 1 {
		t.Fatalf("exit code = %d, want 1", *code)
	}
}

func TestGoNamedRecoversPanic(t *testing.T) {
	rt, code := newTestRuntime()

	rt.GoNamed("worker", func() { panic("bad") })
	if err := rt.Wait(); err == nil {
		t.Fatalf("expected Wait to report the panic")
	}
	if rt.Ctx().Err() == nil {
		t.Fatalf("expected context to be cancelled after a panic")
	}

	var execErr error
	rt.Finalize("update-tags", "", &execErr)
	if *code != 1 {
		t.Fatalf("exit code = %d, want 1", *code)
	}
}

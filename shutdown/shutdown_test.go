package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPhaseOrder(t *testing.T) {
	c := New()

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// Registered out of order on purpose.
	c.RegisterFunc("tracer", PhaseTelemetry, record("tracer"))
	c.RegisterFunc("store", PhaseStore, record("store"))
	c.RegisterFunc("manager", PhaseBoundary, record("manager"))

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	want := []string{"manager", "store", "tracer"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSamePhaseConcurrent(t *testing.T) {
	c := New()

	gate := make(chan struct{})
	var arrived sync.WaitGroup
	arrived.Add(2)

	// Both block until the other has started; sequential execution deadlocks
	// and the test deadline catches it.
	blocker := func(context.Context) error {
		arrived.Done()
		<-gate
		return nil
	}
	c.RegisterFunc("a", PhaseBoundary, blocker)
	c.RegisterFunc("b", PhaseBoundary, blocker)

	go func() {
		arrived.Wait()
		close(gate)
	}()

	done := make(chan error, 1)
	go func() { done <- c.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("same-phase handlers did not run concurrently")
	}
}

func TestSecondShutdown(t *testing.T) {
	c := New()
	c.RegisterFunc("noop", PhaseBoundary, func(context.Context) error { return nil })

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := c.Shutdown(context.Background()); err != ErrAlreadyShutdown {
		t.Errorf("second Shutdown = %v, want ErrAlreadyShutdown", err)
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done not closed after Shutdown")
	}
}

func TestHandlerFailureReported(t *testing.T) {
	c := New()
	c.RegisterFunc("bad", PhaseBoundary, func(context.Context) error {
		return errors.New("flush failed")
	})
	c.RegisterFunc("good", PhaseStore, func(context.Context) error { return nil })

	if err := c.Shutdown(context.Background()); err != ErrHandlerFailed {
		t.Errorf("Shutdown = %v, want ErrHandlerFailed", err)
	}
	if c.Err() != ErrHandlerFailed {
		t.Errorf("Err = %v, want ErrHandlerFailed", c.Err())
	}
}

func TestTimeoutStopsLaterPhases(t *testing.T) {
	c := New()

	var ran bool
	c.RegisterFunc("slow", PhaseBoundary, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.RegisterFunc("late", PhaseStore, func(context.Context) error {
		ran = true
		return nil
	})

	err := c.ShutdownWithTimeout(50 * time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("Shutdown = %v, want ErrTimeout", err)
	}
	if ran {
		t.Error("later phase ran after deadline")
	}
}

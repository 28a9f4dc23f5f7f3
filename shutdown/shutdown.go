// Package shutdown coordinates phased session teardown. An enginekit session
// layers components with teardown order constraints: the engine boundary must
// dispose before the store it writes through closes, and the telemetry
// provider flushes last so the teardown itself is traced.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/discoverlab/enginekit/logging"
)

var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates teardown did not complete within the deadline.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates at least one component failed to tear down.
	ErrHandlerFailed = errors.New("shutdown handler failed")
)

// Standard phases, lowest first. Components in the same phase tear down
// concurrently.
const (
	// PhaseBoundary disposes the engine boundary (manager or worker).
	PhaseBoundary = 10

	// PhaseStore closes persistence after the boundary stops writing.
	PhaseStore = 20

	// PhaseTelemetry flushes and shuts the tracing provider down last.
	PhaseTelemetry = 30
)

// Handler is implemented by components that need graceful teardown. The
// context carries the overall deadline.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// Func adapts a plain function to Handler.
type Func func(ctx context.Context) error

// OnShutdown implements Handler.
func (f Func) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

type registration struct {
	name    string
	phase   int
	handler Handler
}

// Coordinator runs registered handlers phase by phase when shutdown is
// initiated, by call or by signal.
type Coordinator struct {
	log     *logging.Logger
	timeout time.Duration

	mu       sync.Mutex
	handlers []registration

	once sync.Once
	done chan struct{}
	err  error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the overall teardown deadline used by signal-initiated
// shutdown and ShutdownWithTimeout(0). Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Coordinator) {
		c.log = log.WithComponent("shutdown")
	}
}

// New creates a Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		log:     logging.New().WithComponent("shutdown"),
		timeout: 30 * time.Second,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a named handler to a phase.
func (c *Coordinator) Register(name string, phase int, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, phase: phase, handler: handler})
}

// RegisterFunc adds a plain function to a phase.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Register(name, phase, Func(fn))
}

// Shutdown runs all handlers in phase order, concurrently within each phase.
// The first call performs the teardown; later calls return ErrAlreadyShutdown
// once the first has finished, so a signal racing an explicit call is safe.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	first := false
	c.once.Do(func() {
		first = true
		c.err = c.run(ctx)
		close(c.done)
	})
	if first {
		return c.err
	}
	<-c.done
	return ErrAlreadyShutdown
}

// ShutdownWithTimeout runs Shutdown under a deadline. A zero timeout uses
// the configured default.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout == 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals initiates shutdown on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-ch
		c.log.Info("signal received", map[string]interface{}{"signal": sig.String()})
		_ = c.ShutdownWithTimeout(0)
	}()
}

// Done closes when teardown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the teardown error. Only meaningful after Done closes.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	handlers := append([]registration(nil), c.handlers...)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	var failed bool
	for start := 0; start < len(handlers); {
		end := start
		for end < len(handlers) && handlers[end].phase == handlers[start].phase {
			end++
		}

		select {
		case <-ctx.Done():
			c.log.Error("teardown deadline exceeded", map[string]interface{}{
				"phase": handlers[start].phase,
			})
			return ErrTimeout
		default:
		}

		if c.runPhase(ctx, handlers[start:end]) {
			failed = true
		}
		start = end
	}

	if failed {
		return ErrHandlerFailed
	}
	return nil
}

// runPhase tears one phase down concurrently and reports whether any
// handler failed.
func (c *Coordinator) runPhase(ctx context.Context, group []registration) bool {
	var wg sync.WaitGroup
	var anyFailed atomic.Bool

	for _, reg := range group {
		wg.Add(1)
		go func(r registration) {
			defer wg.Done()
			start := time.Now()
			if err := r.handler.OnShutdown(ctx); err != nil {
				anyFailed.Store(true)
				c.log.Warn("component teardown failed", map[string]interface{}{
					"component": r.name,
					"error":     err.Error(),
				})
				return
			}
			c.log.Debug("component torn down", map[string]interface{}{
				"component": r.name,
				"took":      time.Since(start).String(),
			})
		}(reg)
	}
	wg.Wait()
	return anyFailed.Load()
}

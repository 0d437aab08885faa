package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Shutdown hook priorities. Lower runs first.
const (
	PriorityReadiness = 5
	PriorityHTTP      = 10
	PriorityWorker    = 20
	PriorityTracing   = 80
)

// ShutdownHook is a function called during shutdown.
type ShutdownHook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// ShutdownHandler runs registered hooks once, in priority order, under a
// shared timeout.
type ShutdownHandler struct {
	mu      sync.Mutex
	hooks   []ShutdownHook
	timeout time.Duration
	logger  *slog.Logger

	once sync.Once
	done chan struct{}
	err  error
}

// DefaultShutdownTimeout bounds all hooks together.
const DefaultShutdownTimeout = 30 * time.Second

// NewShutdownHandler creates a handler. A zero timeout means
// DefaultShutdownTimeout.
func NewShutdownHandler(timeout time.Duration, logger *slog.Logger) *ShutdownHandler {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownHandler{timeout: timeout, logger: logger, done: make(chan struct{})}
}

// RegisterHook adds a hook. Hooks of equal priority run in registration
// order.
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, ShutdownHook{Name: name, Priority: priority, Fn: fn})
	sort.SliceStable(s.hooks, func(i, j int) bool { return s.hooks[i].Priority < s.hooks[j].Priority })
}

// Wait blocks until ctx is done, typically a signal.NotifyContext, then runs
// the hooks.
func (s *ShutdownHandler) Wait(ctx context.Context) error {
	<-ctx.Done()
	return s.Shutdown()
}

// Shutdown runs every hook once. A failing hook is logged and the rest still
// run; the failures are returned joined. Later calls return the same result.
func (s *ShutdownHandler) Shutdown() error {
	s.once.Do(func() {
		defer close(s.done)

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		s.mu.Lock()
		hooks := append([]ShutdownHook(nil), s.hooks...)
		s.mu.Unlock()

		var errs []error
		for _, h := range hooks {
			start := time.Now()
			if err := h.Fn(ctx); err != nil {
				s.logger.Error("shutdown hook failed", "hook", h.Name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
				continue
			}
			s.logger.Debug("shutdown hook done", "hook", h.Name, "duration", time.Since(start))
		}
		s.err = errors.Join(errs...)
	})
	<-s.done
	return s.err
}

// Done closes once every hook has run.
func (s *ShutdownHandler) Done() <-chan struct{} {
	return s.done
}

// Hooks returns the registered hook names in run order.
func (s *ShutdownHandler) Hooks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.hooks))
	for i, h := range s.hooks {
		names[i] = h.Name
	}
	return names
}

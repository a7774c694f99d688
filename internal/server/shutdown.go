package server

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Hook priorities. Lower runs first.
const (
	PriorityHTTP     = 10
	PriorityWorker   = 20
	PriorityTracing  = 80
	PriorityStorage  = 90
	defaultShutdownT = 30 * time.Second
)

// ShutdownHook is a function called during shutdown.
type ShutdownHook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// ShutdownHandler runs registered hooks once, on a signal or on Shutdown.
type ShutdownHandler struct {
	mu         sync.Mutex
	hooks      []ShutdownHook
	timeout    time.Duration
	signals    []os.Signal
	logger     zerolog.Logger
	trigger    chan struct{}
	done       chan struct{}
	started    bool
	once       sync.Once
	finishOnce sync.Once
	errs       []error
}

// NewShutdownHandler returns a handler listening for SIGINT and SIGTERM.
// A zero timeout means 30s.
func NewShutdownHandler(timeout time.Duration, logger zerolog.Logger) *ShutdownHandler {
	if timeout <= 0 {
		timeout = defaultShutdownT
	}
	return &ShutdownHandler{
		timeout: timeout,
		signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
		logger:  logger,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Register adds a hook. Hooks with equal priority keep registration order.
func (s *ShutdownHandler) Register(h ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
	sort.SliceStable(s.hooks, func(i, j int) bool { return s.hooks[i].Priority < s.hooks[j].Priority })
}

// Start begins listening for signals. Calling it twice is a no-op.
func (s *ShutdownHandler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, s.signals...)

	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		case <-s.trigger:
		}
		signal.Stop(sigCh)
		s.run()
	}()
}

// Shutdown triggers shutdown manually. It does nothing before Start.
func (s *ShutdownHandler) Shutdown() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	s.once.Do(func() { close(s.trigger) })
}

// Done is closed once every hook has run.
func (s *ShutdownHandler) Done() <-chan struct{} { return s.done }

// Wait blocks until shutdown completes or timeout elapses and reports
// whether it completed.
func (s *ShutdownHandler) Wait(timeout time.Duration) bool {
	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Errors returns the hook failures collected during shutdown.
func (s *ShutdownHandler) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func (s *ShutdownHandler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	hooks := append([]ShutdownHook(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		if err := h.Fn(ctx); err != nil {
			s.logger.Error().Err(err).Str("hook", h.Name).Msg("shutdown hook failed")
			s.mu.Lock()
			s.errs = append(s.errs, err)
			s.mu.Unlock()
			continue
		}
		s.logger.Debug().Str("hook", h.Name).Msg("shutdown hook done")
	}
	s.finishOnce.Do(func() { close(s.done) })
}

// HTTPServerHook stops an http.Server-like shutdown function.
func HTTPServerHook(name string, shutdown func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: name, Priority: PriorityHTTP, Fn: shutdown}
}

// WorkerHook stops a Temporal worker.
func WorkerHook(stop func()) ShutdownHook {
	return ShutdownHook{
		Name:     "temporal-worker",
		Priority: PriorityWorker,
		Fn: func(context.Context) error {
			stop()
			return nil
		},
	}
}

// TracingHook flushes and stops the tracer provider.
func TracingHook(shutdown func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "tracing", Priority: PriorityTracing, Fn: shutdown}
}

// StorageHook closes a history store or other connection.
func StorageHook(name string, closeFn func() error) ShutdownHook {
	return ShutdownHook{
		Name:     name,
		Priority: PriorityStorage,
		Fn:       func(context.Context) error { return closeFn() },
	}
}

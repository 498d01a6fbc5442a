package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// pingTimeout bounds the health probe run after a failed engine call.
const pingTimeout = 3 * time.Second

// Supervisor owns the lifecycle of the single engine process: launch,
// readiness, crash detection, shutdown. Every other component consults it
// before any engine-facing call and shares the handle read-only.
type Supervisor struct {
	mu     sync.Mutex
	launch Launcher
	logger *slog.Logger

	eng   Engine
	ready bool
}

// NewSupervisor creates a Supervisor. The engine is not launched until
// Initialize is called.
func NewSupervisor(launch Launcher, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{launch: launch, logger: logger}
}

// Initialize launches the engine process. Idempotent: the first caller
// performs the launch under the lock, concurrent callers observe the same
// outcome without double-launching. A launch failure leaves the supervisor
// uninitialized so a retry is possible; no half-initialized state is ever
// visible to other components.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	eng, err := s.launch(ctx)
	if err != nil {
		return fmt.Errorf("engine: launch: %w", err)
	}
	s.eng = eng
	s.ready = true
	s.logger.Info("engine: ready")
	return nil
}

// Engine returns the shared engine handle, or ErrUnavailable when the
// engine has not been initialized or has been marked dead.
func (s *Supervisor) Engine() (Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready || s.eng == nil {
		return nil, ErrUnavailable
	}
	return s.eng, nil
}

// Ready reports whether the engine is initialized and believed alive.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Confirm classifies a failed engine-facing call. It pings the process: if
// the ping fails the engine is marked unavailable (lazy crash detection)
// and ErrUnavailable is returned; otherwise the original error stands and
// the caller reports it as an operation-level failure.
func (s *Supervisor) Confirm(ctx context.Context, opErr error) error {
	s.mu.Lock()
	eng, ready := s.eng, s.ready
	s.mu.Unlock()

	if !ready || eng == nil {
		return ErrUnavailable
	}
	// The probe must not inherit the caller's cancellation: a client that
	// disconnects mid-operation would otherwise read as a dead process and
	// flip the whole engine unavailable.
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pingTimeout)
	defer cancel()
	if err := eng.Ping(pingCtx); err != nil {
		s.mu.Lock()
		s.ready = false
		s.mu.Unlock()
		s.logger.Error("engine: process unreachable, marking unavailable", "error", err)
		return ErrUnavailable
	}
	return opErr
}

// Shutdown terminates the engine process and clears readiness. Callers are
// expected to have torn down sessions first; Shutdown itself only kills the
// process.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eng == nil {
		s.ready = false
		return nil
	}
	err := s.eng.Close(ctx)
	s.eng = nil
	s.ready = false
	if err != nil {
		return fmt.Errorf("engine: shutdown: %w", err)
	}
	s.logger.Info("engine: terminated")
	return nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// DefaultLockTTL is the lease taken on the distributed lock for each operation.
const DefaultLockTTL = 30 * time.Second

// ErrNoFlow is returned when an operation that runs the interpreter receives no flow.
var ErrNoFlow = errors.New("session: flow is required")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// ChangeFunc is notified after every committed snapshot. old is nil for new sessions.
type ChangeFunc func(ctx context.Context, old, new *domain.State)

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store  ports.StateStore
	interp ports.Interpreter

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker   ports.DistributedLocker // Optional distributed locker
	lockTTL  time.Duration
	onChange []ChangeFunc
	logger   *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides the distributed lock lease.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithOnChange registers a callback run after each committed snapshot.
// Callbacks run while the session lock is held, so they observe commits in order
// and must not call back into the Manager for the same session.
func WithOnChange(fn ChangeFunc) Option {
	return func(m *Manager) {
		m.onChange = append(m.onChange, fn)
	}
}

// NewManager creates a new Session Manager over a persistence store and an interpreter.
func NewManager(store ports.StateStore, interp ports.Interpreter, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		interp:  interp,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers a callback after construction.
// It is not safe to call concurrently with session operations.
func (m *Manager) OnChange(fn ChangeFunc) {
	m.onChange = append(m.onChange, fn)
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Start begins a conversation. An existing session running the same flow is
// returned unchanged; one running a different flow is restarted.
func (m *Manager) Start(ctx context.Context, sessionID string, flow *domain.Flow) (*domain.State, error) {
	if flow == nil {
		return nil, ErrNoFlow
	}
	var state *domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, sessionID)
		switch {
		case err == nil:
			if sameFlow(current, flow) {
				state = current
				return nil
			}
			m.logger.Info("flow changed, restarting session", "session_id", sessionID, "flow_id", flow.ID)
			state, err = m.interp.Restart(ctx, flow, current)
			if err != nil {
				return err
			}
			return m.commit(ctx, current, state)

		case errors.Is(err, domain.ErrSessionNotFound):
			state, err = m.interp.Start(ctx, flow, sessionID)
			if err != nil {
				return err
			}
			return m.commit(ctx, nil, state)
		}
		return fmt.Errorf("failed to check session existence: %w", err)
	})
	return state, err
}

// Submit applies a response to the session.
//
// The session is marked as processing while the interpreter runs, which may
// include one provider or webhook call. Concurrent submits fail with
// domain.ErrBusy. If the session was restarted meanwhile, the result is
// dropped and domain.ErrStaleGeneration is returned. A changed flow restarts
// the session instead of applying the response.
func (m *Manager) Submit(ctx context.Context, sessionID string, flow *domain.Flow, resp domain.Response) (*domain.State, error) {
	if flow == nil {
		return nil, ErrNoFlow
	}
	var (
		snapshot *domain.State
		done     bool
	)
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if current.Processing {
			return domain.ErrBusy
		}
		if !sameFlow(current, flow) {
			m.logger.Info("flow changed, restarting session", "session_id", sessionID, "flow_id", flow.ID)
			snapshot, err = m.interp.Restart(ctx, flow, current)
			if err != nil {
				return err
			}
			done = true
			return m.commit(ctx, current, snapshot)
		}
		if current.Terminal() {
			snapshot, done = current, true
			return nil
		}

		busy := current.Clone()
		busy.Processing = true
		if err := m.commit(ctx, current, busy); err != nil {
			return err
		}
		snapshot = current
		return nil
	})
	if err != nil || done {
		return snapshot, err
	}

	result, runErr := m.interp.Submit(ctx, flow, snapshot, resp)

	// The outcome is committed even if the caller went away, otherwise the
	// session would stay busy forever.
	var state *domain.State
	err = m.WithLock(context.WithoutCancel(ctx), sessionID, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if current.Generation != snapshot.Generation {
			m.logger.Info("dropping stale response", "session_id", sessionID,
				"generation", snapshot.Generation, "current_generation", current.Generation)
			return domain.ErrStaleGeneration
		}
		if runErr != nil {
			cleared := current.Clone()
			cleared.Processing = false
			if err := m.commit(ctx, current, cleared); err != nil {
				m.logger.Error("failed to clear processing flag", "session_id", sessionID, "err", err)
			}
			return runErr
		}
		result.Processing = false
		state = result
		return m.commit(ctx, current, result)
	})
	return state, err
}

// Restart discards the conversation and starts it over with a new generation.
// Results still in flight for the previous generation are dropped.
func (m *Manager) Restart(ctx context.Context, sessionID string, flow *domain.Flow) (*domain.State, error) {
	if flow == nil {
		return nil, ErrNoFlow
	}
	var state *domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, sessionID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			current = domain.NewState(sessionID)
		} else if err != nil {
			return err
		}
		state, err = m.interp.Restart(ctx, flow, current)
		if err != nil {
			return err
		}
		return m.commit(ctx, current, state)
	})
	return state, err
}

// Get returns the last committed snapshot of a session without waiting for
// calls in progress: a Submit in flight reads as Processing, a Start or
// Restart in flight as the snapshot before it.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.State, error) {
	return m.store.Load(ctx, sessionID)
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func (m *Manager) commit(ctx context.Context, old, next *domain.State) error {
	if err := m.store.Save(ctx, next.SessionID, next); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	for _, fn := range m.onChange {
		fn(ctx, old, next)
	}
	return nil
}

func sameFlow(state *domain.State, flow *domain.Flow) bool {
	return state.FlowID == flow.ID && state.FlowFingerprint == flow.Fingerprint()
}

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/rehab.report/internal/exercise"
	"github.com/banshee-data/rehab.report/internal/pose"
	"github.com/banshee-data/rehab.report/internal/timeutil"
)

// DefaultIdleTimeout is how long a session may go without frames before
// the reaper declares it TIMEOUT.
const DefaultIdleTimeout = 30 * time.Second

// ManagerConfig wires a Manager to its collaborators. Only Definitions is
// required.
type ManagerConfig struct {
	Definitions exercise.Source
	Sink        SummarySink // Optional; nil skips persistence
	Store       Store       // Defaults to a MemoryStore
	Observer    Observer    // Attached to every session
	Clock       timeutil.Clock
	Session     *Config // Defaults to DefaultConfig()
	IdleTimeout time.Duration
}

// Manager runs many sessions. Frames for one session are serialized;
// different sessions proceed in parallel.
type Manager struct {
	defs        exercise.Source
	sink        SummarySink
	store       Store
	observer    Observer
	clock       timeutil.Clock
	sessionCfg  Config
	idleTimeout time.Duration

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	persisted map[string]bool
	ended     map[string]Summary
}

// NewManager returns a Manager for cfg.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		defs:        cfg.Definitions,
		sink:        cfg.Sink,
		store:       cfg.Store,
		observer:    cfg.Observer,
		clock:       cfg.Clock,
		sessionCfg:  DefaultConfig(),
		idleTimeout: cfg.IdleTimeout,
		locks:       make(map[string]*sync.Mutex),
		persisted:   make(map[string]bool),
		ended:       make(map[string]Summary),
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	if m.clock == nil {
		m.clock = timeutil.RealClock{}
	}
	if cfg.Session != nil {
		m.sessionCfg = *cfg.Session
	}
	if m.idleTimeout <= 0 {
		m.idleTimeout = DefaultIdleTimeout
	}
	return m
}

// Start resolves exerciseID and opens a session. It returns the new
// session id.
func (m *Manager) Start(ctx context.Context, exerciseID string, targetReps int, maxDuration time.Duration) (string, error) {
	if m.defs == nil {
		return "", fmt.Errorf("%w: no definition source configured", exercise.ErrNotFound)
	}
	def, err := m.defs.Definition(ctx, exerciseID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve exercise %q: %w", exerciseID, err)
	}

	opts := []Option{WithConfig(m.sessionCfg)}
	if m.observer != nil {
		opts = append(opts, WithObserver(m.observer))
	}
	s, err := Start(def, targetReps, maxDuration, m.clock.Now(), opts...)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.locks[s.ID] = &sync.Mutex{}
	m.mu.Unlock()
	m.store.Put(s)
	return s.ID, nil
}

// lock acquires the per-session mutex for id and returns the session
// with its unlock function. A session that has been closed but whose
// summary is still held yields ErrSessionClosed.
func (m *Manager) lock(id string) (*Session, func(), error) {
	m.mu.Lock()
	l, ok := m.locks[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil, m.missing(id)
	}
	l.Lock()
	s, ok := m.store.Get(id)
	if !ok {
		l.Unlock()
		return nil, nil, m.missing(id)
	}
	return s, l.Unlock, nil
}

func (m *Manager) missing(id string) error {
	if _, ok := m.endedSummary(id); ok {
		return fmt.Errorf("%w: %s has ended", ErrSessionClosed, id)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (m *Manager) endedSummary(id string) (Summary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, ok := m.ended[id]
	return sum, ok
}

// ProcessFrame feeds f to session id. When the frame ends the session the
// summary is handed to the sink; a sink failure is logged and retried by
// End or the reaper.
func (m *Manager) ProcessFrame(ctx context.Context, id string, f pose.Frame, now time.Time) (FrameResult, error) {
	s, unlock, err := m.lock(id)
	if err != nil {
		return FrameResult{}, err
	}
	defer unlock()

	res, err := s.ProcessFrame(f, now)
	if err != nil {
		return res, err
	}
	if res.Status.IsTerminal() {
		if err := m.persist(ctx, s); err != nil {
			opsf("session %s: %v", id, err)
		}
	}
	return res, nil
}

// End closes session id and returns its summary. Ending an already ended
// session returns the same summary.
func (m *Manager) End(ctx context.Context, id string, now time.Time) (Summary, error) {
	if sum, ok := m.endedSummary(id); ok {
		return sum, nil
	}

	s, unlock, err := m.lock(id)
	if err != nil {
		// The reaper may have closed the session while we waited.
		if sum, ok := m.endedSummary(id); ok {
			return sum, nil
		}
		return Summary{}, err
	}
	defer unlock()

	sum := s.End(now)
	if err := m.close(ctx, s); err != nil {
		return sum, err
	}
	return sum, nil
}

// persist hands the frozen summary of s to the sink once.
func (m *Manager) persist(ctx context.Context, s *Session) error {
	m.mu.Lock()
	done := m.persisted[s.ID]
	m.mu.Unlock()
	if done || m.sink == nil {
		return nil
	}
	sum, ok := s.Summary()
	if !ok {
		return nil
	}
	if err := m.sink.SaveSummary(ctx, sum); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	m.mu.Lock()
	m.persisted[s.ID] = true
	m.mu.Unlock()
	return nil
}

// close persists a terminal session and moves it to the ended set. The
// caller holds the session lock.
func (m *Manager) close(ctx context.Context, s *Session) error {
	if err := m.persist(ctx, s); err != nil {
		return err
	}
	sum, _ := s.Summary()
	m.store.Remove(s.ID)
	m.mu.Lock()
	delete(m.persisted, s.ID)
	m.ended[s.ID] = sum
	m.mu.Unlock()
	// The lock entry stays until the ended summary is pruned so that a
	// racing caller blocked on it finds the ended summary.
	return nil
}

// ReapExpired times out sessions idle for at least the idle timeout,
// closes sessions left terminal, and forgets ended summaries older than
// the idle timeout. It returns the summaries of sessions it closed.
func (m *Manager) ReapExpired(ctx context.Context, now time.Time) []Summary {
	var closed []Summary
	for _, id := range m.store.IDs() {
		s, unlock, err := m.lock(id)
		if err != nil {
			continue
		}
		idle := now.Sub(s.LastFrameAt())
		if s.Status().IsTerminal() || idle >= m.idleTimeout {
			sum := s.Expire(now)
			if err := m.close(ctx, s); err != nil {
				opsf("reaper: session %s: %v", id, err)
			} else {
				diagf("reaper: closed session %s as %s after %s idle", id, sum.Status, idle)
				closed = append(closed, sum)
			}
		}
		unlock()
	}

	m.mu.Lock()
	for id, sum := range m.ended {
		if now.Sub(sum.EndedAt) >= m.idleTimeout {
			delete(m.ended, id)
			delete(m.locks, id)
		}
	}
	m.mu.Unlock()
	return closed
}

// RunReaper calls ReapExpired every interval until ctx is cancelled.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			m.ReapExpired(ctx, now)
		}
	}
}

// Session returns a live session by id. Callers must not drive it
// directly while the manager is in use.
func (m *Manager) Session(id string) (*Session, bool) {
	return m.store.Get(id)
}

// Active returns the ids of sessions that have not been closed.
func (m *Manager) Active() []string {
	return m.store.IDs()
}

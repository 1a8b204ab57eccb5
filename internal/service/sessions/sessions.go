// Package sessions owns the live playground sessions of a server: one
// playground.Store per session plus its pending debounced edits. Idle
// sessions are evicted on a cron schedule.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	cronv3 "github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kaiwa/internal/debounce"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/playground"
	"github.com/ashita-ai/kaiwa/internal/telemetry"
)

// ErrNotFound is returned for unknown or evicted session ids.
var ErrNotFound = errors.New("sessions: session not found")

// Defaults used when Config leaves a field zero.
const (
	DefaultIdleTimeout = 30 * time.Minute
	DefaultSweepSpec   = "@every 1m"
)

// Config controls session lifetime and edit debouncing.
type Config struct {
	IdleTimeout      time.Duration
	SweepSpec        string
	DebounceInterval time.Duration
	// OnEvict, when set, is called with the ids of each idle sweep's
	// evicted sessions, outside the manager lock.
	OnEvict func(ids []uuid.UUID)
}

// Session is one live playground.
type Session struct {
	ID        uuid.UUID
	Store     *playground.Store
	CreatedAt time.Time

	edits    *debounce.Group[model.MessageID, string]
	lastUsed atomic.Int64
}

// Info summarises a session for listings.
type Info struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	Instances int       `json:"instances"`
	Version   uint64    `json:"version"`
}

// ScheduleContent queues a content edit for a message. Edits to the same
// message within the debounce interval collapse into the last one. Returns
// false when the session is closed.
func (s *Session) ScheduleContent(id model.MessageID, content string) bool {
	s.touch(time.Now())
	return s.edits.Schedule(id, content)
}

// CancelEdit drops the queued edit for a message, if any. Call it before
// committing a newer edit to the same message so the queued text cannot
// land on top of it. It reports whether an edit was dropped.
func (s *Session) CancelEdit(id model.MessageID) bool {
	return s.edits.Cancel(id)
}

// PendingEdits returns the number of messages with a queued edit.
func (s *Session) PendingEdits() int {
	return s.edits.Len()
}

// FlushEdits commits every queued edit now and returns how many there were.
func (s *Session) FlushEdits() int {
	return s.edits.FlushAll()
}

// LastUsed returns when the session was last accessed.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

// Info summarises the session.
func (s *Session) Info() Info {
	st := s.Store.Snapshot()
	return Info{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.LastUsed().UTC(),
		Instances: len(st.Instances),
		Version:   st.Version,
	}
}

// Manager holds the live sessions.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	cronMu sync.Mutex
	cron   *cronv3.Cron
}

// NewManager returns an empty Manager and registers the active-session gauge.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = DefaultSweepSpec
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = debounce.DefaultInterval
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*Session),
	}
	m.registerMetrics()
	return m
}

func (m *Manager) registerMetrics() {
	meter := telemetry.Meter("kaiwa/sessions")
	_, _ = meter.Int64ObservableGauge("kaiwa.sessions.active",
		metric.WithDescription("Live playground sessions"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.Len()))
			return nil
		}),
	)
}

// Create starts a session seeded with seed.
func (m *Manager) Create(seed playground.Seed) *Session {
	now := m.now()
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: now.UTC(),
	}
	s.Store = playground.NewStore(seed, m.logger.With("session_id", s.ID))
	s.edits = debounce.NewGroup(m.cfg.DebounceInterval, func(id model.MessageID, content string) {
		patch := model.MessagePatch{Content: &content}
		if err := s.Store.UpdateMessage(id, patch, playground.UpdateOptions{}); err != nil {
			m.logger.Warn("sessions: dropped debounced edit", "session_id", s.ID, "message_id", id, "error", err)
		}
	})
	s.touch(now)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Debug("sessions: created", "session_id", s.ID)
	return s
}

// Get returns a session and marks it as used.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.touch(m.now())
	return s, nil
}

// Delete ends a session. Queued edits are discarded, not committed.
func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.edits.CloseAll()
	return nil
}

// List returns every live session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle deletes sessions unused for longer than the idle timeout and
// returns their ids.
func (m *Manager) EvictIdle() []uuid.UUID {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var evicted []*Session
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) {
			evicted = append(evicted, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(evicted))
	for _, s := range evicted {
		s.edits.CloseAll()
		ids = append(ids, s.ID)
	}
	if len(ids) > 0 {
		m.logger.Info("sessions: evicted idle sessions", "count", len(ids))
		if m.cfg.OnEvict != nil {
			m.cfg.OnEvict(ids)
		}
	}
	return ids
}

// Start schedules the idle sweep. Calling Start twice is an error.
func (m *Manager) Start() error {
	m.cronMu.Lock()
	defer m.cronMu.Unlock()
	if m.cron != nil {
		return errors.New("sessions: sweep already started")
	}
	parser := cronv3.NewParser(cronv3.SecondOptional | cronv3.Minute | cronv3.Hour | cronv3.Dom | cronv3.Month | cronv3.Dow | cronv3.Descriptor)
	c := cronv3.New(cronv3.WithParser(parser), cronv3.WithChain(cronv3.SkipIfStillRunning(cronv3.DiscardLogger)))
	if _, err := c.AddFunc(m.cfg.SweepSpec, func() { m.EvictIdle() }); err != nil {
		return fmt.Errorf("sessions: invalid sweep schedule %q: %w", m.cfg.SweepSpec, err)
	}
	c.Start()
	m.cron = c
	return nil
}

// Stop halts the sweep and waits for a running sweep to finish or ctx to
// expire. Live sessions stay in place.
func (m *Manager) Stop(ctx context.Context) {
	m.cronMu.Lock()
	c := m.cron
	m.cron = nil
	m.cronMu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Close stops the sweep and ends every session.
func (m *Manager) Close(ctx context.Context) {
	m.Stop(ctx)
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.edits.CloseAll()
	}
}

package sessionmgr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/atelierai/agentcore/internal/observability"
	"github.com/atelierai/agentcore/pkg/models"
)

// Driver advances a session by one turn (spec §4.5). sessionmgr depends on
// this interface rather than internal/agentloop directly, so the loop
// driver can depend on sessionmgr's Store without an import cycle.
type Driver interface {
	Step(ctx context.Context, session *models.Session, interrupted func() bool) error
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Manager is the Session Manager (spec §4.1, §5): a concurrent map of
// sessions, each guarded by its own lock acquired only by the session's own
// task, grounded on the teacher's Runtime.lockSession refcounted-mutex-map
// pattern (internal/agent/tool_registry.go, internal/agent/runtime.go).
type Manager struct {
	store  Store
	driver Driver

	locksMu sync.Mutex
	locks   map[string]*sessionLock

	interruptsMu sync.Mutex
	interrupts   map[string]*atomic.Bool

	now func() time.Time

	// Metrics records session-lifecycle observability. Nil disables
	// recording; set it directly on the constructed Manager.
	Metrics *observability.Metrics
}

// New constructs a Manager backed by store and driver. nowFn defaults to
// time.Now.
func New(store Store, driver Driver, nowFn func() time.Time) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Manager{
		store:      store,
		driver:     driver,
		locks:      make(map[string]*sessionLock),
		interrupts: make(map[string]*atomic.Bool),
		now:        nowFn,
	}
}

// lockSession acquires the per-session mutex, creating it on first use and
// removing it once the last holder releases — mirrors the teacher's
// refcounted lockSession exactly, generalized from channel sessions to
// agent-loop sessions.
func (m *Manager) lockSession(sessionID string) func() {
	m.locksMu.Lock()
	lock := m.locks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		m.locks[sessionID] = lock
	}
	lock.refs++
	m.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		m.locksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(m.locks, sessionID)
		}
		m.locksMu.Unlock()
	}
}

func (m *Manager) interruptFlag(sessionID string) *atomic.Bool {
	m.interruptsMu.Lock()
	defer m.interruptsMu.Unlock()
	flag := m.interrupts[sessionID]
	if flag == nil {
		flag = &atomic.Bool{}
		m.interrupts[sessionID] = flag
	}
	return flag
}

// Create starts a new Pending session (spec §4.5's create transition) and
// persists it.
func (m *Manager) Create(ctx context.Context, owner, organization string, cfg models.SessionConfig) (*models.Session, error) {
	now := m.now()
	session := &models.Session{
		ID:           uuid.NewString(),
		Owner:        owner,
		Organization: organization,
		Status:       models.StatusPending,
		Config:       cfg.Sanitize(),
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("sessionmgr: create: %w", err)
	}
	return session, nil
}

// Load fetches a session by id, surfacing ErrNotFound if absent.
func (m *Manager) Load(ctx context.Context, sessionID string) (*models.Session, error) {
	return m.store.Get(ctx, sessionID)
}

// Step advances session by exactly one turn under the session's own lock
// (spec §4.5 "per-turn procedure"), starting it if still Pending. Terminal
// sessions return ErrTerminal without invoking the driver.
func (m *Manager) Step(ctx context.Context, sessionID string) (*models.Session, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()

	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if timedOut, terr := m.checkTimeout(ctx, session); terr != nil {
		return nil, terr
	} else if timedOut {
		return session, nil
	}
	if session.Status.Terminal() {
		return session, ErrTerminal
	}
	if session.Status == models.StatusPending {
		session.Status = models.StatusRunning
		if m.Metrics != nil {
			m.Metrics.SessionStarted()
		}
	}

	flag := m.interruptFlag(sessionID)
	stepErr := m.driver.Step(ctx, session, flag.Load)
	if m.Metrics != nil && session.Status.Terminal() {
		m.Metrics.SessionEnded(string(session.Status), m.now().Sub(session.CreatedAt).Seconds())
	}
	if stepErr != nil {
		return session, stepErr
	}
	session.LastActivity = m.now()

	if err := m.store.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("sessionmgr: persist step: %w", err)
	}
	return session, nil
}

// checkTimeout implements spec §4.1's timeout policy: a non-terminal
// session past its time_limit transitions to Timeout on the next status or
// step call, rather than via any background process mutating it directly.
// Returns true if the transition happened (and was persisted) this call.
func (m *Manager) checkTimeout(ctx context.Context, session *models.Session) (bool, error) {
	if session.Status.Terminal() {
		return false, nil
	}
	if !session.Expired(m.now()) {
		return false, nil
	}
	wasRunning := session.Status == models.StatusRunning
	session.Status = models.StatusTimeout
	if err := m.store.Update(ctx, session); err != nil {
		return false, fmt.Errorf("sessionmgr: persist timeout: %w", err)
	}
	if m.Metrics != nil {
		m.Metrics.RecordSweptTimeout()
		if wasRunning {
			m.Metrics.SessionEnded(string(models.StatusTimeout), m.now().Sub(session.CreatedAt).Seconds())
		}
	}
	return true, nil
}

// Interrupt atomically sets session's cancel flag (spec §5 "Cancellation").
// The flag is checked at each suspension point by the driver; any in-flight
// tool handler must observe it cooperatively.
func (m *Manager) Interrupt(ctx context.Context, sessionID string) error {
	m.interruptFlag(sessionID).Store(true)

	unlock := m.lockSession(sessionID)
	defer unlock()
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status.Terminal() {
		return nil
	}
	session.Status = models.StatusInterrupted
	return m.store.Update(ctx, session)
}

// Status returns the O(1) status projection (spec §6 "Session snapshot").
// It acquires the session lock only long enough to copy the three fields,
// so status observers never contend with an in-flight step for long.
func (m *Manager) Status(ctx context.Context, sessionID string) (models.StatusSnapshot, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()

	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return models.StatusSnapshot{}, err
	}
	if _, terr := m.checkTimeout(ctx, session); terr != nil {
		return models.StatusSnapshot{}, terr
	}
	return models.StatusSnapshot{
		Status:        session.Status,
		Progress:      session.Progress,
		TimeRemaining: session.TimeRemaining(m.now()),
	}, nil
}

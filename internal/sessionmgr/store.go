// Package sessionmgr implements the Session Manager (spec §4.1, §5): the
// concurrent map of agent-loop sessions, create/load/step/interrupt/status
// operations, per-session locking, and JWT-signed snapshot export/import.
package sessionmgr

import (
	"context"
	"sync"

	"github.com/atelierai/agentcore/pkg/models"
)

// Store is session persistence, grounded on internal/sessions/store.go's
// Store interface shape but addressed to models.Session (the agent-loop
// session) rather than models.ChannelSession (the channel-gateway thread).
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, owner string) ([]*models.Session, error)
}

// MemStore is an in-memory Store, suitable for tests and single-process
// deployments; a SQL-backed Store follows the same internal/sessions
// pattern (prepared statements over CockroachDB/Postgres) once a durable
// deployment needs it.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]*models.Session)}
}

func (s *MemStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return ErrAlreadyExists
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

func (s *MemStore) Update(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemStore) List(ctx context.Context, owner string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if owner == "" || session.Owner == owner {
			out = append(out, session)
		}
	}
	return out, nil
}

var _ Store = (*MemStore)(nil)

package sessionmgr

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atelierai/agentcore/pkg/models"
)

// Snapshot is the external session representation (spec §6 "Session
// snapshot"): {owner, organization?, status, config, history[], context[],
// research_goal?, system_message?, messages[]}.
type Snapshot struct {
	Owner        string                 `json:"owner"`
	Organization string                 `json:"organization,omitempty"`
	Status       models.SessionStatus   `json:"status"`
	Config       models.SessionConfig   `json:"config"`
	History      []models.Conversation  `json:"history"`
	Context      []models.ContextEntry  `json:"context"`
	ResearchGoal string                 `json:"research_goal,omitempty"`
	SystemMsg    string                 `json:"system_message,omitempty"`
	Messages     []models.Message       `json:"messages"`
}

// Export projects a Session onto its external Snapshot (spec §6).
func Export(session *models.Session) Snapshot {
	return Snapshot{
		Owner:        session.Owner,
		Organization: session.Organization,
		Status:       session.Status,
		Config:       session.Config,
		History:      session.History,
		Context:      session.Context,
		ResearchGoal: session.ResearchGoal,
		SystemMsg:    session.SystemMsg,
		Messages:     session.Messages,
	}
}

// Load reconstructs a Session's snapshot-carried fields. ID, Progress,
// LastActivity and CreatedAt are not part of the snapshot and must be
// supplied by the caller (store row or a fresh Create).
func Load(id string, snap Snapshot, lastActivity, createdAt time.Time) *models.Session {
	return &models.Session{
		ID:           id,
		Owner:        snap.Owner,
		Organization: snap.Organization,
		Status:       snap.Status,
		Config:       snap.Config.Sanitize(),
		ResearchGoal: snap.ResearchGoal,
		SystemMsg:    snap.SystemMsg,
		History:      snap.History,
		Context:      snap.Context,
		Messages:     snap.Messages,
		LastActivity: lastActivity,
		CreatedAt:    createdAt,
	}
}

// SnapshotSigner signs and verifies exported snapshots for transport across
// the core's boundary (spec §6), grounded on the teacher's
// internal/auth.JWTService (HMAC-signed jwt/v5 RegisteredClaims) keyed by
// the same JWT_SECRET the ambient config validates at startup. The
// snapshot JSON travels as a custom claim rather than the subject, since it
// carries the full session body, not just an identity.
type SnapshotSigner struct {
	secret []byte
	expiry time.Duration
}

// NewSnapshotSigner builds a signer. expiry <= 0 means tokens never expire.
func NewSnapshotSigner(secret string, expiry time.Duration) *SnapshotSigner {
	return &SnapshotSigner{secret: []byte(secret), expiry: expiry}
}

type snapshotClaims struct {
	SessionID string          `json:"session_id"`
	Snapshot  json.RawMessage `json:"snapshot"`
	jwt.RegisteredClaims
}

var ErrSigningDisabled = errors.New("sessionmgr: snapshot signing disabled (empty secret)")

// Sign produces a signed token embedding sessionID and snap.
func (s *SnapshotSigner) Sign(sessionID string, snap Snapshot) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrSigningDisabled
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("sessionmgr: marshal snapshot: %w", err)
	}

	claims := snapshotClaims{
		SessionID: sessionID,
		Snapshot:  body,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  sessionID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a signed snapshot token, returning the
// session id and snapshot it carries.
func (s *SnapshotSigner) Verify(token string) (string, Snapshot, error) {
	if len(s.secret) == 0 {
		return "", Snapshot{}, ErrSigningDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &snapshotClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", Snapshot{}, fmt.Errorf("sessionmgr: invalid snapshot token: %w", err)
	}
	claims, ok := parsed.Claims.(*snapshotClaims)
	if !ok || !parsed.Valid {
		return "", Snapshot{}, fmt.Errorf("sessionmgr: invalid snapshot token claims")
	}

	var snap Snapshot
	if err := json.Unmarshal(claims.Snapshot, &snap); err != nil {
		return "", Snapshot{}, fmt.Errorf("sessionmgr: unmarshal snapshot: %w", err)
	}
	return claims.SessionID, snap, nil
}

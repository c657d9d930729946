package agentloop

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/atelierai/agentcore/internal/sessionmgr"
	"github.com/atelierai/agentcore/pkg/models"
)

// noopDriver never advances a session; the sweeper tests only care about
// the timeout transition sessionmgr.Manager.Status performs on its own.
type noopDriver struct{}

func (noopDriver) Step(ctx context.Context, session *models.Session, interrupted func() bool) error {
	return nil
}

func TestTimeoutSweeperSweepsExpiredSessions(t *testing.T) {
	store := sessionmgr.NewMemStore()
	manager := sessionmgr.New(store, noopDriver{}, time.Now)
	sweeper := NewTimeoutSweeper(store, manager, slog.Default())

	ctx := context.Background()
	expired, err := manager.Create(ctx, "user-1", "", models.SessionConfig{TimeLimit: time.Millisecond})
	if err != nil {
		t.Fatalf("create expired session: %v", err)
	}
	expired.Status = models.StatusRunning
	expired.LastActivity = time.Now().Add(-time.Hour)
	if err := store.Update(ctx, expired); err != nil {
		t.Fatalf("update expired session: %v", err)
	}

	fresh, err := manager.Create(ctx, "user-1", "", models.SessionConfig{TimeLimit: time.Hour})
	if err != nil {
		t.Fatalf("create fresh session: %v", err)
	}
	fresh.Status = models.StatusRunning
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("update fresh session: %v", err)
	}

	sweeper.sweep(ctx, []string{""})

	got, err := store.Get(ctx, expired.ID)
	if err != nil {
		t.Fatalf("get expired session: %v", err)
	}
	if got.Status != models.StatusTimeout {
		t.Errorf("expected expired session to be swept to Timeout, got %s", got.Status)
	}

	got, err = store.Get(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("get fresh session: %v", err)
	}
	if got.Status != models.StatusRunning {
		t.Errorf("expected fresh session to remain Running, got %s", got.Status)
	}
}

func TestTimeoutSweeperSkipsTerminalSessions(t *testing.T) {
	store := sessionmgr.NewMemStore()
	manager := sessionmgr.New(store, noopDriver{}, time.Now)
	sweeper := NewTimeoutSweeper(store, manager, slog.Default())

	ctx := context.Background()
	session, err := manager.Create(ctx, "user-1", "", models.SessionConfig{TimeLimit: time.Millisecond})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	session.Status = models.StatusCompleted
	session.LastActivity = time.Now().Add(-time.Hour)
	if err := store.Update(ctx, session); err != nil {
		t.Fatalf("update session: %v", err)
	}

	sweeper.sweep(ctx, []string{""})

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("expected terminal session to be left alone, got %s", got.Status)
	}
}

func TestTimeoutSweeperStartStop(t *testing.T) {
	store := sessionmgr.NewMemStore()
	manager := sessionmgr.New(store, noopDriver{}, time.Now)
	sweeper := NewTimeoutSweeper(store, manager, slog.Default())
	sweeper.Schedule = "@every 10ms"

	if err := sweeper.Start(context.Background(), []string{""}); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
}

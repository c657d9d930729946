package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/atelierai/agentcore/pkg/models"
)

type fakeGate struct {
	canDebit  bool
	debited   []float64
	debitErr  error
}

func (g *fakeGate) CanDebit(ctx context.Context, subject models.Subject, amount float64) (bool, error) {
	return g.canDebit, nil
}

func (g *fakeGate) Debit(ctx context.Context, subject models.Subject, amount float64, source models.ActionSource, actionType models.ActionType, entityID string) (*models.CreditTransaction, error) {
	if g.debitErr != nil {
		return nil, g.debitErr
	}
	g.debited = append(g.debited, amount)
	return &models.CreditTransaction{CreditsChanged: -amount, NewBalance: 0}, nil
}

// flakyTool fails with a retryable error on its first N-1 invocations, then
// succeeds, to exercise spec §4.3 step 7's bounded retry.
type flakyTool struct {
	failUntilAttempt int
	attempts         int
}

func (t *flakyTool) Name() string        { return "flaky" }
func (t *flakyTool) Description() string { return "flaky test tool" }
func (t *flakyTool) Cost() int           { return 1 }
func (t *flakyTool) NewParams() Params   { return &SaveContextParams{} }
func (t *flakyTool) Handler(ctx context.Context, p Params) (*HandlerResult, error) {
	t.attempts++
	if t.attempts < t.failUntilAttempt {
		return nil, &ToolError{Kind: KindRetryable, ToolName: t.Name(), Reason: "timeout talking to upstream"}
	}
	return &HandlerResult{
		Full: &models.FullToolResponse{ToolName: t.Name(), Response: "ok"},
		User: &models.UserToolResponse{ToolName: t.Name(), Summary: "ok"},
	}, nil
}

func TestDispatch_UnknownTool(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, &fakeGate{canDebit: true}, nil)

	_, err := d.Dispatch(context.Background(), models.ToolCall{Name: "nope"}, CallerContext{}, models.Subject{}, time.Second)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Kind != KindUnknownTool {
		t.Fatalf("expected KindUnknownTool, got %v", err)
	}
}

func TestDispatch_InsufficientCredits_NeverInvokesHandler(t *testing.T) {
	r := NewRegistry()
	tool := &flakyTool{failUntilAttempt: 1}
	r.MustRegister(PartitionInternal, tool)
	d := NewDispatcher(r, &fakeGate{canDebit: false}, nil)

	_, err := d.Dispatch(context.Background(), models.ToolCall{Name: "flaky"}, CallerContext{}, models.Subject{}, time.Second)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Kind != KindQuotaExceeded {
		t.Fatalf("expected KindQuotaExceeded, got %v", err)
	}
	if tool.attempts != 0 {
		t.Fatalf("handler invoked %d times, want 0 when admission denies", tool.attempts)
	}
}

func TestDispatch_IdentityInjection_OverwritesCallerFields(t *testing.T) {
	r := NewRegistry()
	var seen CallerContext
	r.MustRegister(PartitionInternal, &recordingTool{seen: &seen})
	d := NewDispatcher(r, &fakeGate{canDebit: true}, nil)

	args, _ := json.Marshal(map[string]string{"content": "fact", "user_id": "attacker-supplied"})
	_, err := d.Dispatch(context.Background(), models.ToolCall{Name: "record", Input: args}, CallerContext{UserID: "real-user"}, models.Subject{}, time.Second)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if seen.UserID != "real-user" {
		t.Fatalf("UserID = %q, want dispatch to overwrite with the real caller identity", seen.UserID)
	}
}

type recordingTool struct {
	seen *CallerContext
}

func (t *recordingTool) Name() string        { return "record" }
func (t *recordingTool) Description() string { return "records the caller context it was invoked with" }
func (t *recordingTool) Cost() int           { return 0 }
func (t *recordingTool) NewParams() Params   { return &SaveContextParams{} }
func (t *recordingTool) Handler(ctx context.Context, p Params) (*HandlerResult, error) {
	sp := p.(*SaveContextParams)
	*t.seen = CallerContext{UserID: sp.UserID, OrganizationID: sp.OrganizationID}
	return &HandlerResult{
		Full: &models.FullToolResponse{ToolName: t.Name(), Response: "ok"},
		User: &models.UserToolResponse{ToolName: t.Name(), Summary: "ok"},
	}, nil
}

func TestDispatch_RetriesRetryableFailureThenSucceeds(t *testing.T) {
	r := NewRegistry()
	tool := &flakyTool{failUntilAttempt: 2}
	r.MustRegister(PartitionInternal, tool)
	d := NewDispatcher(r, &fakeGate{canDebit: true}, nil)

	outcome, err := d.Dispatch(context.Background(), models.ToolCall{Name: "flaky"}, CallerContext{}, models.Subject{}, 5*time.Second)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", outcome.Attempts)
	}
}

func TestDispatch_FatalFailureIsNotRetried(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(PartitionInternal, fatalTool{})
	d := NewDispatcher(r, &fakeGate{canDebit: true}, nil)

	_, err := d.Dispatch(context.Background(), models.ToolCall{Name: "fatal"}, CallerContext{}, models.Subject{}, time.Second)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Kind != KindFatal {
		t.Fatalf("expected KindFatal, got %v", err)
	}
}

type fatalTool struct{}

func (fatalTool) Name() string        { return "fatal" }
func (fatalTool) Description() string { return "always fails fatally" }
func (fatalTool) Cost() int           { return 0 }
func (fatalTool) NewParams() Params   { return &SaveContextParams{} }
func (fatalTool) Handler(ctx context.Context, p Params) (*HandlerResult, error) {
	return nil, &ToolError{Kind: KindFatal, ToolName: "fatal", Reason: "invalid credentials"}
}

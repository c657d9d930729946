package sessionmgr

import "testing"

func TestShouldTerminate_CompletionMarkerRequiresNoOutstandingToolCalls(t *testing.T) {
	policy := DefaultTerminationPolicy()
	if ShouldTerminate(policy, "done TASK_COMPLETE", true, 0, TerminationState{}, false) {
		t.Fatal("marker present but tool calls outstanding should not terminate")
	}
	if !ShouldTerminate(policy, "done TASK_COMPLETE", false, 0, TerminationState{}, false) {
		t.Fatal("marker present with no outstanding tool calls should terminate")
	}
}

func TestShouldTerminate_MaxTurnsWithoutProgress(t *testing.T) {
	policy := DefaultTerminationPolicy()
	if ShouldTerminate(policy, "still working", false, policy.MaxTurnsWithoutProgress, TerminationState{}, false) {
		t.Fatal("exactly at the bound should not yet terminate")
	}
	if !ShouldTerminate(policy, "still working", false, policy.MaxTurnsWithoutProgress+1, TerminationState{}, false) {
		t.Fatal("exceeding the bound should terminate")
	}
}

func TestShouldTerminate_ConsecutiveHighRelevance(t *testing.T) {
	policy := DefaultTerminationPolicy()
	state := TerminationState{}
	state = state.Observe(0.97, false)
	if ShouldTerminate(policy, "", false, 0, state, false) {
		t.Fatal("one high-relevance turn should not terminate")
	}
	state = state.Observe(0.96, false)
	if !ShouldTerminate(policy, "", false, 0, state, false) {
		t.Fatal("two consecutive high-relevance turns should terminate")
	}
}

func TestShouldTerminate_ToolCallsResetRelevanceStreak(t *testing.T) {
	state := TerminationState{}
	state = state.Observe(0.99, false)
	state = state.Observe(0.99, true) // tool call in between resets the streak
	if state.ConsecutiveHighRelevance != 0 {
		t.Fatalf("ConsecutiveHighRelevance = %d, want 0 after a tool-call turn", state.ConsecutiveHighRelevance)
	}
}

func TestShouldTerminate_InterruptAlwaysWins(t *testing.T) {
	if !ShouldTerminate(DefaultTerminationPolicy(), "", true, 0, TerminationState{}, true) {
		t.Fatal("interrupted should always terminate regardless of other conditions")
	}
}

func TestSnapshotSigner_RoundTrip(t *testing.T) {
	signer := NewSnapshotSigner("test-secret", 0)
	snap := Snapshot{Owner: "user-1", Status: "running"}

	token, err := signer.Sign("session-1", snap)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	id, got, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id != "session-1" {
		t.Fatalf("session id = %q, want session-1", id)
	}
	if got.Owner != "user-1" || got.Status != "running" {
		t.Fatalf("round-tripped snapshot mismatch: %+v", got)
	}
}

func TestSnapshotSigner_DisabledWithoutSecret(t *testing.T) {
	signer := NewSnapshotSigner("", 0)
	if _, err := signer.Sign("session-1", Snapshot{}); err != ErrSigningDisabled {
		t.Fatalf("expected ErrSigningDisabled, got %v", err)
	}
}

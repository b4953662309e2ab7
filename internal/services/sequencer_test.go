package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hellarekt/perpbot/internal/domain"
	"github.com/hellarekt/perpbot/internal/ports"
)

func approveStep(w *fakeWriter, amount decimal.Decimal) Step {
	return Step{
		Name: stepApprove,
		Dispatch: func(ctx context.Context) (ports.PendingTx, error) {
			return w.SubmitApproval(ctx, ports.ApproveForPerps, amount)
		},
	}
}

func actionStep(w *fakeWriter, name string, kind ports.ActionKind) Step {
	return Step{
		Name: name,
		Dispatch: func(ctx context.Context) (ports.PendingTx, error) {
			return w.SubmitAction(ctx, kind, nil)
		},
	}
}

func terminal(seq *Sequencer, id string) func() bool {
	return func() bool {
		in := seq.Intent(id)
		return in != nil && in.State.Terminal()
	}
}

func TestSequencer_Submit_Validation(t *testing.T) {
	seq := NewSequencer(context.Background(), nil)

	var ve *ValidationError
	if _, err := seq.Submit("bogus", testOwner, []Step{{Name: "x"}}); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for unknown kind, got %v", err)
	}
	if _, err := seq.Submit(domain.IntentClaim, testOwner, nil); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for empty steps, got %v", err)
	}
}

func TestSequencer_HappyPath(t *testing.T) {
	writer := &fakeWriter{}
	reader := newFakeReader()
	store := NewPositionStore(reader, testOwner)
	seq := NewSequencer(context.Background(), store)

	in, err := seq.Submit(domain.IntentOpen, testOwner, []Step{
		approveStep(writer, decimal.NewFromInt(100)),
		actionStep(writer, stepOpenPosition, ports.ActionOpenPosition),
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if in.State != domain.IntentStateCreated {
		t.Errorf("expected Created state on return, got %s", in.State)
	}

	waitFor(t, 2*time.Second, terminal(seq, in.ID), "intent did not finish")

	got := seq.Intent(in.ID)
	if got.State != domain.IntentStateCompleted {
		t.Fatalf("expected Completed, got %s (%s)", got.State, got)
	}
	for i, st := range got.Steps {
		if st.State != domain.StepStateSettled {
			t.Errorf("step %d: expected settled, got %s", i, st.State)
		}
		if st.TxHash == "" {
			t.Errorf("step %d: expected tx hash", i)
		}
	}

	// dispatch order is strict: approve first, then the action
	recs := writer.recorded()
	if len(recs) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(recs))
	}
	if recs[0].op != "approve:perps" || recs[1].op != string(ports.ActionOpenPosition) {
		t.Errorf("unexpected dispatch order: %+v", recs)
	}

	// snapshot refreshed before the intent turned Completed
	reader.mu.Lock()
	calls := reader.refreshCalls
	reader.mu.Unlock()
	if calls == 0 {
		t.Error("expected a snapshot refresh after completion")
	}

	if seq.InFlight(testOwner, domain.IntentOpen) {
		t.Error("gate must be released after completion")
	}
}

func TestSequencer_DispatchFailureStopsChain(t *testing.T) {
	writer := &fakeWriter{}
	writer.push(scriptedResult{err: errors.New("insufficient funds")})
	seq := NewSequencer(context.Background(), nil)

	in, err := seq.Submit(domain.IntentOpen, testOwner, []Step{
		approveStep(writer, decimal.NewFromInt(100)),
		actionStep(writer, stepOpenPosition, ports.ActionOpenPosition),
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	waitFor(t, 2*time.Second, terminal(seq, in.ID), "intent did not finish")

	got := seq.Intent(in.ID)
	if got.State != domain.IntentStateFailed {
		t.Fatalf("expected Failed, got %s", got.State)
	}
	name, reason := got.FailedStep()
	if name != stepApprove {
		t.Errorf("expected failure at %s, got %s", stepApprove, name)
	}
	if reason == "" {
		t.Error("expected a failure reason")
	}
	if got.Steps[1].State != domain.StepStateWaiting {
		t.Errorf("second step must never be dispatched, got %s", got.Steps[1].State)
	}
	if len(writer.recorded()) != 1 {
		t.Errorf("expected exactly 1 dispatch, got %d", len(writer.recorded()))
	}
	if seq.InFlight(testOwner, domain.IntentOpen) {
		t.Error("gate must be released after failure")
	}
}

func TestSequencer_RevertedSettlementStopsChain(t *testing.T) {
	writer := &fakeWriter{}
	writer.push(scriptedResult{tx: &scriptedTx{}}) // approve settles fine
	writer.push(scriptedResult{tx: &scriptedTx{waitErr: errors.New("交易已回滚")}})
	seq := NewSequencer(context.Background(), nil)

	in, err := seq.Submit(domain.IntentOpen, testOwner, []Step{
		approveStep(writer, decimal.NewFromInt(100)),
		actionStep(writer, stepOpenPosition, ports.ActionOpenPosition),
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	waitFor(t, 2*time.Second, terminal(seq, in.ID), "intent did not finish")

	got := seq.Intent(in.ID)
	if got.State != domain.IntentStateFailed {
		t.Fatalf("expected Failed, got %s", got.State)
	}
	if got.Steps[0].State != domain.StepStateSettled {
		t.Errorf("first step should have settled, got %s", got.Steps[0].State)
	}
	if got.Steps[1].State != domain.StepStateFailed {
		t.Errorf("second step should have failed, got %s", got.Steps[1].State)
	}
	name, _ := got.FailedStep()
	if name != stepOpenPosition {
		t.Errorf("expected failure at %s, got %s", stepOpenPosition, name)
	}
}

func TestSequencer_DuplicateRejectedSynchronously(t *testing.T) {
	writer := &fakeWriter{}
	release := make(chan struct{})
	writer.push(scriptedResult{tx: &scriptedTx{release: release}})
	seq := NewSequencer(context.Background(), nil)

	first, err := seq.Submit(domain.IntentClaim, testOwner, []Step{
		actionStep(writer, stepFaucetClaim, ports.ActionFaucetClaim),
	})
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return seq.InFlight(testOwner, domain.IntentClaim)
	}, "first intent never became in-flight")

	// same (owner, kind) while in flight: synchronous rejection
	var dup *DuplicateIntentError
	if _, err := seq.Submit(domain.IntentClaim, testOwner, []Step{
		actionStep(writer, stepFaucetClaim, ports.ActionFaucetClaim),
	}); !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateIntentError, got %v", err)
	}

	// a different kind for the same owner is not blocked
	if _, err := seq.Submit(domain.IntentDeposit, testOwner, []Step{
		actionStep(writer, stepPoolDeposit, ports.ActionPoolDeposit),
	}); err != nil {
		t.Fatalf("different kind should be accepted: %v", err)
	}

	close(release)
	waitFor(t, 2*time.Second, terminal(seq, first.ID), "first intent did not finish")

	// after the terminal state a new intent of the same kind is accepted
	if _, err := seq.Submit(domain.IntentClaim, testOwner, []Step{
		actionStep(writer, stepFaucetClaim, ports.ActionFaucetClaim),
	}); err != nil {
		t.Fatalf("resubmit after terminal state failed: %v", err)
	}
}

func TestSequencer_IntentsOrderedByCreation(t *testing.T) {
	writer := &fakeWriter{}
	seq := NewSequencer(context.Background(), nil)

	a, _ := seq.Submit(domain.IntentClaim, "0xaaa", []Step{actionStep(writer, stepFaucetClaim, ports.ActionFaucetClaim)})
	time.Sleep(10 * time.Millisecond)
	b, _ := seq.Submit(domain.IntentClaim, "0xbbb", []Step{actionStep(writer, stepFaucetClaim, ports.ActionFaucetClaim)})

	waitFor(t, 2*time.Second, terminal(seq, a.ID), "intent a did not finish")
	waitFor(t, 2*time.Second, terminal(seq, b.ID), "intent b did not finish")

	all := seq.Intents()
	if len(all) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(all))
	}
	if all[0].ID != a.ID || all[1].ID != b.ID {
		t.Errorf("expected creation order [%s %s], got [%s %s]", a.ID, b.ID, all[0].ID, all[1].ID)
	}

	if seq.Intent("missing") != nil {
		t.Error("unknown intent id must return nil")
	}
}

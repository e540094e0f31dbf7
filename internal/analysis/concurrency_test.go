package analysis

import (
	"testing"
)

func TestThreadSpawnPromotesCaptures(t *testing.T) {
	ctx := NewAnalysisContext(nil)
	ctx.DefineVar("data")
	ctx.DeriveOwnership()
	ctx.RecordThreadSpawn([]string{"data"})

	if got := ctx.ThreadLocalityOf("data"); got != LocalityShared {
		t.Errorf("locality = %s, want Shared", got)
	}
	if !ctx.NeedsAtomicRC("data") {
		t.Error("shared data needs atomic reference counts")
	}
	if got := ctx.OwnershipOf("data").Kind; got != OwnerShared {
		t.Errorf("ownership kind = %s, want Shared", got)
	}
}

func TestSpawnFormCapturesOuterVars(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(let ((data (cons 1 2))) (spawn (display data)))")

	if got := ctx.ThreadLocalityOf("data"); got != LocalityShared {
		t.Errorf("locality = %s, want Shared", got)
	}
	if !ctx.NeedsAtomicRC("data") {
		t.Error("data crosses a thread boundary")
	}
	if ctx.Stats.SharedPromotions != 1 {
		t.Errorf("SharedPromotions = %d, want 1", ctx.Stats.SharedPromotions)
	}
}

func TestSpawnDoesNotPromoteBodyLocals(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(spawn (let ((tmp (cons 1 2))) (display tmp)))")

	if got := ctx.ThreadLocalityOf("tmp"); got != LocalityLocal {
		t.Errorf("locality = %s, want Local for a body-local binding", got)
	}
	if ctx.NeedsAtomicRC("tmp") {
		t.Error("a body-local value never leaves its thread")
	}
}

func TestChannelSendTransfers(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(let ((msg (cons 1 2)) (ch (make-chan))) (chan-send! ch msg))")

	if got := ctx.ThreadLocalityOf("msg"); got != LocalityTransfer {
		t.Errorf("locality = %s, want Transfer", got)
	}
	if ctx.ShouldFreeAfterSend("msg") {
		t.Error("the sender must not free a transferred value")
	}
	rec := ctx.OwnershipOf("msg")
	if rec.Kind != OwnerTransferred || rec.MustFree {
		t.Errorf("kind = %s mustFree = %v, want Transferred and no free", rec.Kind, rec.MustFree)
	}
}

func TestChannelRecvBindsLocal(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(define v (chan-recv! ch))")

	if got := ctx.ThreadLocalityOf("v"); got != LocalityLocal {
		t.Errorf("locality = %s, want Local on the receiving side", got)
	}
	if ctx.NeedsAtomicRC("v") {
		t.Error("a received value starts thread-local")
	}
}

func TestNonTransferringSendKeepsOwnership(t *testing.T) {
	ctx := NewAnalysisContext(nil)
	ctx.DefineVar("msg")
	ctx.DeriveOwnership()
	ctx.RecordChannelSend("msg", false)

	if !ctx.ShouldFreeAfterSend("msg") {
		t.Error("a non-transferring send leaves the free duty with the sender")
	}
	if got := ctx.ThreadLocalityOf("msg"); got != LocalityLocal {
		t.Errorf("locality = %s, want Local", got)
	}
}

func TestAtomCellSharesValue(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(let ((state (cons 1 2))) (atom state))")

	if got := ctx.ThreadLocalityOf("state"); got != LocalityShared {
		t.Errorf("locality = %s, want Shared inside an atomic cell", got)
	}
	if !ctx.NeedsAtomicRC("state") {
		t.Error("atomic cell contents need atomic reference counts")
	}
}

func TestImmutableCrossesFreely(t *testing.T) {
	ctx := NewAnalysisContext(nil)
	ctx.DefineVar("table")
	ctx.MarkThreadImmutable("table")

	if got := ctx.ThreadLocalityOf("table"); got != LocalityImmutable {
		t.Errorf("locality = %s, want Immutable", got)
	}
	if ctx.NeedsAtomicRC("table") {
		t.Error("immutable data needs no synchronization")
	}
}

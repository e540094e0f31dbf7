package analysis

import (
	"testing"
)

func TestEscapeMonotonicity(t *testing.T) {
	classes := []EscapeClass{EscapeNone, EscapeArg, EscapeReturn, EscapeClosure, EscapeGlobal}

	for _, first := range classes {
		for _, second := range classes {
			ctx := NewAnalysisContext(nil)
			ctx.DefineVar("v")
			ctx.RaiseEscape("v", first)
			ctx.RaiseEscape("v", second)

			want := first
			if second > first {
				want = second
			}
			if got := ctx.EscapeOf("v"); got != want {
				t.Errorf("raise %s then %s: got %s, want %s", first, second, got, want)
			}
		}
	}
}

func TestLocalBinding(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(let ((x 1)) x)")

	rec := ctx.OwnershipOf("x")
	if rec == nil {
		t.Fatal("no ownership record for x")
	}
	if rec.Kind != OwnerLocal {
		t.Errorf("kind = %s, want Local", rec.Kind)
	}
	if !rec.MustFree {
		t.Error("x should be must-free")
	}
	if !ctx.IsUnique("x") {
		t.Error("x should be unique")
	}
	if rec.Free != FreeUnique && rec.Free != FreeTree {
		t.Errorf("free strategy = %s, want Unique or Tree", rec.Free)
	}
	if rec.Alloc != AllocStack {
		t.Errorf("alloc = %s, want Stack", rec.Alloc)
	}
}

func TestArgumentEscape(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(let ((x (cons 1 2))) (display x))")

	if got := ctx.EscapeOf("x"); got != EscapeArg {
		t.Errorf("escape = %s, want arg", got)
	}
	rec := ctx.OwnershipOf("x")
	if rec.Kind != OwnerLocal || !rec.MustFree {
		t.Errorf("kind = %s mustFree = %v, want Local must-free", rec.Kind, rec.MustFree)
	}
	if rec.Alloc != AllocHeap {
		t.Errorf("alloc = %s, want Heap for an escaping argument", rec.Alloc)
	}
}

func TestTailReturnTransfers(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(define (g) (let ((y (cons 1 2))) y))")

	if got := ctx.EscapeOf("y"); got != EscapeReturn {
		t.Errorf("escape = %s, want return", got)
	}
	rec := ctx.OwnershipOf("y")
	if rec.Kind != OwnerTransferred {
		t.Errorf("kind = %s, want Transferred", rec.Kind)
	}
	if rec.MustFree {
		t.Error("a returned value must not be freed by its definer")
	}
}

func TestTopLevelBodyIsNotTailPosition(t *testing.T) {
	// Only function bodies have a return position; a top-level let body
	// result goes nowhere.
	ctx := analyzeSrc(t, nil, "(let ((x (cons 1 2))) x)")

	if got := ctx.EscapeOf("x"); got != EscapeNone {
		t.Errorf("escape = %s, want none at top level", got)
	}
	if rec := ctx.OwnershipOf("x"); rec.Kind != OwnerLocal {
		t.Errorf("kind = %s, want Local", rec.Kind)
	}
}

func TestLambdaCapture(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(define (f x) (lambda (y) x))")

	u := ctx.FindVar("x")
	if u == nil {
		t.Fatal("no usage record for x")
	}
	if !u.Captured {
		t.Error("x should be captured")
	}
	if got := ctx.EscapeOf("x"); got != EscapeClosure {
		t.Errorf("escape = %s, want closure", got)
	}
	if ctx.IsUnique("x") {
		t.Error("a captured variable is no longer unique")
	}
	if rec := ctx.OwnershipOf("x"); rec.Kind != OwnerTransferred {
		t.Errorf("kind = %s, want Transferred", rec.Kind)
	}
}

func TestParameterIsBorrowed(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(define (f x) (display x))")

	rec := ctx.OwnershipOf("x")
	if rec == nil {
		t.Fatal("no ownership record for x")
	}
	if rec.Kind != OwnerBorrowed {
		t.Errorf("kind = %s, want Borrowed", rec.Kind)
	}
	if rec.MustFree {
		t.Error("a borrowed parameter is never freed by the callee")
	}
	if rec.Alloc != AllocHeap {
		t.Errorf("alloc = %s, want Heap for a parameter", rec.Alloc)
	}
}

func TestSetToGlobalEscapes(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(let ((x (cons 1 2))) (set! glob x))")

	if got := ctx.EscapeOf("x"); got != EscapeGlobal {
		t.Errorf("escape = %s, want global", got)
	}
	if ctx.IsUnique("x") {
		t.Error("assignment aliases the value")
	}
	if rec := ctx.OwnershipOf("x"); rec.Kind != OwnerTransferred || rec.MustFree {
		t.Errorf("kind = %s mustFree = %v, want Transferred and no free", rec.Kind, rec.MustFree)
	}
}

func TestQuotedDataIsSkipped(t *testing.T) {
	ctx := analyzeSrc(t, nil, "(define lst '(a b c))")

	for _, name := range []string{"a", "b", "c"} {
		if ctx.FindVar(name) != nil {
			t.Errorf("quoted symbol %s received a usage record", name)
		}
	}
	if ctx.FindVar("lst") == nil {
		t.Error("lst should still be defined")
	}
}

func TestLoopExtendsLastUse(t *testing.T) {
	ctx := analyzeSrc(t, nil,
		"(let ((acc (cons 1 2))) (for-each x items (do (display acc) (display x))))")

	u := ctx.FindVar("acc")
	if u == nil {
		t.Fatal("no usage record for acc")
	}
	// acc's last syntactic use is mid-body, but a value used on any
	// iteration must survive the whole loop.
	if u.LastUse != ctx.Pos() {
		t.Errorf("LastUse = %d, want loop end %d", u.LastUse, ctx.Pos())
	}
}

func TestRebindingResetsRecord(t *testing.T) {
	ctx := NewAnalysisContext(nil)
	ctx.DefineVar("v")
	ctx.RaiseEscape("v", EscapeGlobal)
	ctx.DefineVar("v")

	if got := ctx.EscapeOf("v"); got != EscapeNone {
		t.Errorf("escape after rebind = %s, want none", got)
	}
	if !ctx.IsUnique("v") {
		t.Error("a fresh binding starts unique")
	}
}

func TestMalformedFormsHaveNoEffect(t *testing.T) {
	for _, src := range []string{
		"(let () x)",
		"(let)",
		"(define)",
		"(lambda)",
		"(set! x)",
		"(for-each x)",
	} {
		ctx := analyzeSrc(t, nil, src)
		if errs := ctx.Errors(); len(errs) != 0 {
			t.Errorf("%q: unexpected errors %v", src, errs)
		}
	}
}

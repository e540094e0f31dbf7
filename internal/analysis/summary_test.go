package analysis

import (
	"testing"
)

func TestIdentityPassthrough(t *testing.T) {
	reg := NewSummaryRegistry()
	reg.AnalyzeFunctionSummary(parseOneSexp(t, "(define (identity x) x)"))

	s := reg.SummaryFor("identity")
	if len(s.Params) != 1 {
		t.Fatalf("param count = %d, want 1", len(s.Params))
	}
	if s.Return != ReturnPassthrough {
		t.Errorf("return = %s, want Passthrough", s.Return)
	}
	if s.ReturnParamIndex != 0 {
		t.Errorf("return param index = %d, want 0", s.ReturnParamIndex)
	}
	if s.Params[0] != ParamPassthrough {
		t.Errorf("param = %s, want Passthrough", s.Params[0])
	}
	if reg.CallerShouldFreeArg("identity", 0) {
		t.Error("a passthrough argument comes back as the return value")
	}
}

func TestAllocatingTail(t *testing.T) {
	reg := NewSummaryRegistry()
	reg.AnalyzeFunctionSummary(parseOneSexp(t, "(define (pair-up a b) (cons a b))"))

	s := reg.SummaryFor("pair-up")
	if !s.Allocates {
		t.Error("pair-up allocates")
	}
	if s.Return != ReturnFresh {
		t.Errorf("return = %s, want Fresh", s.Return)
	}
	// cons consumes its arguments into the new pair.
	if s.Params[0] != ParamConsumed || s.Params[1] != ParamConsumed {
		t.Errorf("params = %v, want both Consumed", s.Params)
	}
	if reg.CallerShouldFreeArg("pair-up", 0) {
		t.Error("a consumed argument belongs to the callee")
	}
}

func TestSideEffectingBody(t *testing.T) {
	reg := NewSummaryRegistry()
	reg.AnalyzeFunctionSummary(parseOneSexp(t, "(define (show x) (display x) x)"))

	s := reg.SummaryFor("show")
	if !s.HasSideEffects {
		t.Error("display marks the function side-effecting")
	}
	if s.Return != ReturnPassthrough || s.ReturnParamIndex != 0 {
		t.Errorf("return = %s idx %d, want Passthrough of x", s.Return, s.ReturnParamIndex)
	}
}

func TestCapturedParam(t *testing.T) {
	reg := NewSummaryRegistry()
	reg.AnalyzeFunctionSummary(parseOneSexp(t, "(define (const x) (lambda (y) x))"))

	s := reg.SummaryFor("const")
	if s.Params[0] != ParamCaptured {
		t.Errorf("param = %s, want Captured", s.Params[0])
	}
	if reg.CallerShouldFreeArg("const", 0) {
		t.Error("a captured argument lives on in the closure")
	}
}

func TestBorrowedParamDefault(t *testing.T) {
	reg := NewSummaryRegistry()
	reg.AnalyzeFunctionSummary(parseOneSexp(t, "(define (report x) (display x) 0)"))

	s := reg.SummaryFor("report")
	if s.Params[0] != ParamBorrowed {
		t.Errorf("param = %s, want Borrowed", s.Params[0])
	}
	if !reg.CallerShouldFreeArg("report", 0) {
		t.Error("the caller keeps the free duty for a borrowed argument")
	}
	if s.Return != ReturnNone {
		t.Errorf("return = %s, want None for a scalar literal tail", s.Return)
	}
}

func TestUnknownCalleeDefaultsFresh(t *testing.T) {
	reg := NewSummaryRegistry()

	s := reg.SummaryFor("mystery")
	if s.Return != ReturnFresh {
		t.Errorf("return = %s, want Fresh for an unknown callee", s.Return)
	}
	if !reg.CallerShouldFreeArg("mystery", 0) {
		t.Error("unknown callees never take the free duty")
	}
	if reg.Known("mystery") {
		t.Error("the default is not a registered summary")
	}
}

func TestSeededPrimitives(t *testing.T) {
	reg := NewSummaryRegistry()

	if s := reg.SummaryFor("cons"); !s.Allocates || s.Return != ReturnFresh {
		t.Errorf("cons: allocates=%v return=%s, want fresh allocation", s.Allocates, s.Return)
	}
	if s := reg.SummaryFor("display"); !s.HasSideEffects || s.Return != ReturnNone {
		t.Errorf("display: effects=%v return=%s, want side-effecting None", s.HasSideEffects, s.Return)
	}
	if s := reg.SummaryFor("car"); s.Return != ReturnBorrowed {
		t.Errorf("car: return = %s, want Borrowed", s.Return)
	}
	if !reg.CallerShouldFreeArg("display", 0) {
		t.Error("display only borrows its argument")
	}
	if reg.CallerShouldFreeArg("cons", 1) {
		t.Error("cons consumes its arguments")
	}
}

func TestAccessorTailReturnsBorrowed(t *testing.T) {
	reg := NewSummaryRegistry()
	reg.AnalyzeFunctionSummary(parseOneSexp(t, "(define (first p) (car p))"))

	if s := reg.SummaryFor("first"); s.Return != ReturnBorrowed {
		t.Errorf("return = %s, want Borrowed through car", s.Return)
	}
}

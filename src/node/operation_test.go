package node

import (
	"testing"
)

func TestOperationLifecycle(t *testing.T) {
	op := &Operation{Origin: 2, Seq: 1, Variable: "X", Value: 5, Tentative: 3}

	if b := op.bound(); b.Timestamp != 3 {
		t.Fatalf("bound of a new operation should use the tentative timestamp, got %v", b)
	}

	if err := op.advance(Finalized); err == nil {
		t.Fatal("Created -> Finalized should fail")
	}

	for _, s := range []OpState{Prepared, Finalized, Deferred, Committed} {
		if s == Finalized {
			op.Final = 7
		}
		if err := op.advance(s); err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
	}

	if b := op.bound(); b.Timestamp != 7 || b.Origin != 2 || b.Seq != 1 {
		t.Fatalf("bound of a committed operation should use the final timestamp, got %v", b)
	}

	for _, s := range []OpState{Created, Prepared, Finalized, Deferred, Committed} {
		if err := op.advance(s); err == nil {
			t.Fatalf("Committed -> %s should fail", s)
		}
	}

	e := op.Entry()
	if e.Variable != "X" || e.Value != 5 || e.Timestamp != 7 || e.Origin != 2 || e.Seq != 1 {
		t.Fatalf("unexpected entry %+v", e)
	}
}

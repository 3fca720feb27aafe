package filterlang

import "testing"

func TestFilter_RejectsOnFalseCondition(t *testing.T) {
	f, err := Compile(`entry["read_count"] < 10`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !f.Eval(map[string]any{"read_count": 3}) {
		t.Fatal("expected entry with read_count 3 to pass")
	}
	if f.Eval(map[string]any{"read_count": 42}) {
		t.Fatal("expected entry with read_count 42 to be rejected")
	}
}

func TestFilter_InvalidExpressionFailsToCompile(t *testing.T) {
	if _, err := Compile("entry["); err == nil {
		t.Fatal("expected a compile error for malformed expression")
	}
}

func TestFilter_EmptyExpressionRejected(t *testing.T) {
	if _, err := Compile(""); err == nil {
		t.Fatal("expected an error for empty expression")
	}
}

func TestAlways_AcceptsEverything(t *testing.T) {
	p := Always()
	if !p(map[string]any{"anything": 1}) {
		t.Fatal("expected Always() predicate to accept any entry")
	}
}

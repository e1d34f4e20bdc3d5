package indicator

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValue_Arithmetic(t *testing.T) {
	if Of(3).Add(Absent).Valid() || Absent.Sub(Of(1)).Valid() || Absent.Half().Valid() {
		t.Fatal("arithmetic with an absent operand must be absent")
	}
	if got, _ := Of(7).Sub(Of(10)).Get(); got != -3 {
		t.Fatalf("7-10 = %d", got)
	}
	if Of(0).Valid() != true {
		t.Fatal("zero is a defined value")
	}
	if Absent.Or(42) != 42 || Of(0).Or(42) != 0 {
		t.Fatal("Or fallback mismatch")
	}
}

func TestValue_JSON(t *testing.T) {
	b, err := json.Marshal([]Value{Of(2800), Absent, Of(0)})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[2800,null,0]" {
		t.Fatalf("got %s", b)
	}

	var back []Value
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back[0] != Of(2800) || back[1].Valid() || back[2] != Of(0) {
		t.Fatalf("decoded %v", back)
	}
}

func TestCloud_Snapshot(t *testing.T) {
	c := mustCompute(t, rising(78, 2701))
	s := c.Snapshot(2778, 13)

	assertValue(t, "conversion", s.Conversion, 2773)
	assertValue(t, "base", s.Base, 2764)
	assertValue(t, "span_a", s.SpanA, 2744)
	assertValue(t, "span_b", s.SpanB, 2726)
	assertValue(t, "lagging", s.Lagging, 2778)
	if len(s.Ahead) != 13 {
		t.Fatalf("ahead len=%d", len(s.Ahead))
	}
	assertValue(t, "ahead[0]", s.Ahead[0], 2744-2726)

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"span_a":2744`) {
		t.Fatalf("unexpected json %s", b)
	}
}

func TestCloud_AheadOutOfRange(t *testing.T) {
	c := mustCompute(t, flat(78, 2800))
	if c.Ahead(26).Valid() || c.Ahead(-1).Valid() {
		t.Fatal("expected absent beyond the projected spans")
	}
	if !c.Ahead(25).Valid() {
		t.Fatal("expected last projected position to be defined")
	}
}

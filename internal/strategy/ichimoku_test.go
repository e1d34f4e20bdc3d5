package strategy

import (
	"testing"

	"ichimoku-autotrader/internal/indicator"
)

func TestIchimoku_WaitsForFullHistory(t *testing.T) {
	s := NewIchimoku(indicator.DefaultConfig())

	for i := 0; i < 77; i++ {
		if _, ok := s.OnPrice(2701 + int64(i)); ok {
			t.Fatalf("signal emitted after %d prices", i+1)
		}
	}
	if s.Cloud() != nil {
		t.Fatal("cloud computed before history was full")
	}
	if _, ok := s.Snapshot(); ok {
		t.Fatal("snapshot available before history was full")
	}

	sig, ok := s.OnPrice(2778)
	if !ok {
		t.Fatal("expected a signal on the 78th price")
	}
	if sig.Action != Buy || sig.Confidence != 1 || sig.Price != 2778 {
		t.Fatalf("got %+v", sig)
	}

	have, need := s.History()
	if have != 78 || need != 78 {
		t.Fatalf("history %d/%d", have, need)
	}
}

func TestIchimoku_SlidesWindow(t *testing.T) {
	s := NewIchimoku(indicator.DefaultConfig())
	for i := 0; i < 78; i++ {
		s.OnPrice(2800)
	}

	// Keep rising for a full window: the flat prefix falls out.
	var sig Signal
	for i := 0; i < 78; i++ {
		sig, _ = s.OnPrice(2701 + int64(i))
	}
	if sig.Action != Buy || sig.Confidence != 1 {
		t.Fatalf("got %v %.2f", sig.Action, sig.Confidence)
	}

	snap, ok := s.Snapshot()
	if !ok || snap.Price != 2778 || len(snap.Ahead) != Lookahead {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestIchimoku_Name(t *testing.T) {
	var s Strategy = NewIchimoku(indicator.DefaultConfig())
	if s.Name() != "Ichimoku" {
		t.Fatalf("name = %q", s.Name())
	}
}

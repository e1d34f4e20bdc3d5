package ringbuf

import (
	"testing"
)

func TestWindow_BasicPush(t *testing.T) {
	w := NewWindow(4)

	w.Push(100)
	w.Push(200)

	if w.Len() != 2 {
		t.Fatalf("expected len=2, got %d", w.Len())
	}
	if w.Ready() {
		t.Fatal("window with 2 of 4 should not be ready")
	}
	if w.At(0) != 100 || w.At(1) != 200 {
		t.Fatalf("unexpected contents %v", w.Values(nil))
	}
	if w.Latest() != 200 {
		t.Fatalf("expected latest=200, got %d", w.Latest())
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for p := int64(1); p <= 5; p++ {
		w.Push(p)
	}

	if !w.Ready() {
		t.Fatal("expected full window")
	}
	if w.Len() != 3 {
		t.Fatalf("expected len=3, got %d", w.Len())
	}
	if w.Evicted() != 2 {
		t.Fatalf("expected 2 evictions, got %d", w.Evicted())
	}
	got := w.Values(nil)
	want := []int64{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("values = %v, want %v", got, want)
		}
	}
}

// After any sequence of pushes the window equals the last min(k, cap)
// pushed values in order.
func TestWindow_LastN(t *testing.T) {
	const capacity = 78
	w := NewWindow(capacity)

	var pushed []int64
	for k := 0; k < 300; k++ {
		p := int64(2700 + (k*37)%101)
		w.Push(p)
		pushed = append(pushed, p)

		want := pushed
		if len(want) > capacity {
			want = want[len(want)-capacity:]
		}
		got := w.Values(nil)
		if len(got) != len(want) {
			t.Fatalf("k=%d: len=%d, want %d", k, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("k=%d: index %d = %d, want %d", k, i, got[i], want[i])
			}
		}
		if w.Len() > capacity {
			t.Fatalf("k=%d: len %d exceeds capacity", k, w.Len())
		}
	}
}

func TestWindow_ValuesAppends(t *testing.T) {
	w := NewWindow(2)
	w.Push(7)
	w.Push(8)
	w.Push(9)

	dst := []int64{1}
	dst = w.Values(dst)
	if len(dst) != 3 || dst[0] != 1 || dst[1] != 8 || dst[2] != 9 {
		t.Fatalf("unexpected %v", dst)
	}
}

func TestWindow_Reset(t *testing.T) {
	w := NewWindow(2)
	w.Push(1)
	w.Push(2)
	w.Push(3)
	w.Reset()

	if w.Len() != 0 || w.Ready() || w.Evicted() != 0 {
		t.Fatalf("reset window not empty: len=%d evicted=%d", w.Len(), w.Evicted())
	}
	if len(w.Values(nil)) != 0 {
		t.Fatal("expected no values after reset")
	}
}

func TestWindow_MinimumCapacity(t *testing.T) {
	w := NewWindow(0)
	if w.Cap() != 1 {
		t.Fatalf("expected cap=1, got %d", w.Cap())
	}
	w.Push(5)
	w.Push(6)
	if w.Latest() != 6 || w.Len() != 1 {
		t.Fatalf("unexpected state len=%d latest=%d", w.Len(), w.Latest())
	}
}

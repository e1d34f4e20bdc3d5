// Package ringbuf provides a fixed-capacity sliding window of prices.
// Once full, every push evicts the oldest entry, so the window always holds
// the most recent Cap() observations in arrival order.
package ringbuf

// Window is a FIFO ring of int64 prices. It is not safe for concurrent use;
// the owning event loop is the only writer and reader.
type Window struct {
	buf     []int64
	head    int // index of the oldest element
	n       int
	evicted uint64
}

// NewWindow creates a window holding at most capacity prices.
// Capacity below 1 is raised to 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]int64, capacity)}
}

// Push appends the newest price, dropping the oldest if the window is full.
func (w *Window) Push(price int64) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = price
		w.n++
		return
	}
	w.buf[w.head] = price
	w.head = (w.head + 1) % len(w.buf)
	w.evicted++
}

// Ready reports whether the window holds exactly Cap() prices.
func (w *Window) Ready() bool {
	return w.n == len(w.buf)
}

// Len returns the number of prices held.
func (w *Window) Len() int {
	return w.n
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// At returns the i-th price, 0 being the oldest. Panics when out of range.
func (w *Window) At(i int) int64 {
	if i < 0 || i >= w.n {
		panic("ringbuf: index out of range")
	}
	return w.buf[(w.head+i)%len(w.buf)]
}

// Latest returns the newest price, or 0 if empty.
func (w *Window) Latest() int64 {
	if w.n == 0 {
		return 0
	}
	return w.At(w.n - 1)
}

// Values appends the held prices oldest-first to dst and returns it.
func (w *Window) Values(dst []int64) []int64 {
	first := w.buf[w.head:]
	if len(first) > w.n {
		first = first[:w.n]
	}
	dst = append(dst, first...)
	return append(dst, w.buf[:w.n-len(first)]...)
}

// Evicted returns the total number of prices dropped from the front.
func (w *Window) Evicted() uint64 {
	return w.evicted
}

// Reset empties the window without releasing storage.
func (w *Window) Reset() {
	w.head, w.n, w.evicted = 0, 0, 0
}

// Package indicator computes the Ichimoku cloud over a fixed history of
// integer prices.
//
// Series are aligned slices of optional integers: leading and trailing
// positions with no defined value are absent rather than zero.
package indicator

import (
	"bytes"
	"strconv"
)

// Value is an optional int64. The zero Value is absent.
type Value struct {
	v  int64
	ok bool
}

// Series is an aligned sequence of optional values.
type Series []Value

// Absent is the undefined value.
var Absent = Value{}

// Of returns a defined value.
func Of(v int64) Value { return Value{v: v, ok: true} }

// Get returns the value and whether it is defined.
func (x Value) Get() (int64, bool) { return x.v, x.ok }

// Valid reports whether the value is defined.
func (x Value) Valid() bool { return x.ok }

// Or returns the value, or def when absent.
func (x Value) Or(def int64) int64 {
	if !x.ok {
		return def
	}
	return x.v
}

// Add returns x+y, absent if either operand is absent.
func (x Value) Add(y Value) Value {
	if !x.ok || !y.ok {
		return Absent
	}
	return Of(x.v + y.v)
}

// Sub returns x-y, absent if either operand is absent.
func (x Value) Sub(y Value) Value {
	if !x.ok || !y.ok {
		return Absent
	}
	return Of(x.v - y.v)
}

// Half returns x divided by two, rounded toward negative infinity.
func (x Value) Half() Value {
	if !x.ok {
		return Absent
	}
	return Of(floorDiv(x.v, 2))
}

func (x Value) String() string {
	if !x.ok {
		return "-"
	}
	return strconv.FormatInt(x.v, 10)
}

// MarshalJSON encodes absent as null.
func (x Value) MarshalJSON() ([]byte, error) {
	if !x.ok {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, x.v, 10), nil
}

func (x *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*x = Absent
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*x = Of(v)
	return nil
}

// absents returns n absent values.
func absents(n int) Series {
	if n <= 0 {
		return nil
	}
	return make(Series, n)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

package model

import (
	"fmt"
	"strings"
)

// Instrument identifies one of the two contracts the venue lists.
// Values match the venue's wire encoding.
type Instrument int

const (
	Future Instrument = iota
	ETF
)

func (i Instrument) String() string {
	switch i {
	case Future:
		return "FUTURE"
	case ETF:
		return "ETF"
	default:
		return fmt.Sprintf("Instrument(%d)", int(i))
	}
}

// ParseInstrument accepts "future"/"etf" in any case.
func ParseInstrument(s string) (Instrument, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FUTURE":
		return Future, nil
	case "ETF":
		return ETF, nil
	}
	return 0, fmt.Errorf("unknown instrument %q", s)
}

func (i Instrument) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Instrument) UnmarshalText(b []byte) error {
	v, err := ParseInstrument(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

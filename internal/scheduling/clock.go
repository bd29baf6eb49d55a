package scheduling

import (
	"fmt"
	"time"
)

// Minute is a time of day expressed as minutes since midnight.
type Minute int

// MinutesPerDay is the exclusive upper bound for a time of day.
const MinutesPerDay Minute = 24 * 60

// ParseClock parses a "HH:MM" 24h string.
func ParseClock(s string) (Minute, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return Minute(t.Hour()*60 + t.Minute()), nil
}

// MustClock is ParseClock for literals. It panics on malformed input.
func MustClock(s string) Minute {
	m, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Minute) String() string {
	if m == MinutesPerDay {
		return "24:00"
	}
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

func (m Minute) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts "HH:MM" and the end-of-day bound "24:00".
func (m *Minute) UnmarshalText(b []byte) error {
	if string(b) == "24:00" {
		*m = MinutesPerDay
		return nil
	}
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Valid reports whether m is a start-able time of day.
func (m Minute) Valid() bool {
	return m >= 0 && m < MinutesPerDay
}

// Interval is a half-open time range [Start, End) within one day.
type Interval struct {
	Start Minute `json:"start"`
	End   Minute `json:"end"`
}

// Len returns the interval length in minutes.
func (i Interval) Len() int {
	return int(i.End - i.Start)
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

package scheduling

import (
	"fmt"
	"slices"
	"time"
)

// WorkingHours holds the open intervals per weekday. A weekday without
// entries is closed.
type WorkingHours map[time.Weekday][]Interval

// Validate checks every interval is non-empty, inside the day and that
// intervals of the same weekday do not overlap.
func (wh WorkingHours) Validate() error {
	for day, intervals := range wh {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRequest, day)
		}
		sorted := slices.Clone(intervals)
		sortIntervals(sorted)
		for i, iv := range sorted {
			if iv.Start < 0 || iv.End > MinutesPerDay || iv.Start >= iv.End {
				return fmt.Errorf("%w: %s interval %s", ErrInvalidRequest, day, iv)
			}
			if i > 0 && sorted[i-1].End > iv.Start {
				return fmt.Errorf("%w: %s intervals %s and %s overlap", ErrInvalidRequest, day, sorted[i-1], iv)
			}
		}
	}
	return nil
}

// Normalize returns a deep copy with every weekday's intervals sorted.
func (wh WorkingHours) Normalize() WorkingHours {
	out := make(WorkingHours, len(wh))
	for day, intervals := range wh {
		if len(intervals) == 0 {
			continue
		}
		cp := slices.Clone(intervals)
		sortIntervals(cp)
		out[day] = cp
	}
	return out
}

// On returns the sorted open intervals for a weekday.
func (wh WorkingHours) On(day time.Weekday) []Interval {
	return wh[day]
}

func (wh WorkingHours) covers(day time.Weekday, iv Interval) bool {
	for _, open := range wh[day] {
		if open.Contains(iv) {
			return true
		}
	}
	return false
}

func sortIntervals(ivs []Interval) {
	slices.SortFunc(ivs, func(a, b Interval) int {
		if a.Start != b.Start {
			return int(a.Start - b.Start)
		}
		return int(a.End - b.End)
	})
}

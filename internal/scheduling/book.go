package scheduling

import (
	"slices"
	"sync"

	"cloud.google.com/go/civil"
)

// book is the per-professional appointment collection. All fields are
// guarded by mu; days hold pointers ordered by start time, canceled
// appointments included.
type book struct {
	mu   sync.RWMutex
	prof Professional
	days map[civil.Date][]*Appointment
	byID map[string]*Appointment
}

func newBook(p Professional) *book {
	return &book{
		prof: p,
		days: make(map[civil.Date][]*Appointment),
		byID: make(map[string]*Appointment),
	}
}

// conflict returns the first active appointment on date overlapping iv,
// ignoring the appointment with id skip.
func (b *book) conflict(date civil.Date, iv Interval, skip string) *Appointment {
	for _, a := range b.days[date] {
		if a.Start >= iv.End {
			break
		}
		if a.ID == skip || !a.Status.Active() {
			continue
		}
		if a.Interval().Overlaps(iv) {
			return a
		}
	}
	return nil
}

// insert keeps the day ordered by start; equal starts keep insertion order.
func (b *book) insert(a *Appointment) {
	day := b.days[a.Date]
	i, _ := slices.BinarySearchFunc(day, a.Start+1, func(e *Appointment, t Minute) int {
		return int(e.Start - t)
	})
	b.days[a.Date] = slices.Insert(day, i, a)
	b.byID[a.ID] = a
}

func (b *book) remove(a *Appointment) {
	day := b.days[a.Date]
	i := slices.Index(day, a)
	if i < 0 {
		panic("scheduling: appointment " + a.ID + " missing from its day index")
	}
	day = slices.Delete(day, i, i+1)
	if len(day) == 0 {
		delete(b.days, a.Date)
	} else {
		b.days[a.Date] = day
	}
	delete(b.byID, a.ID)
}

// busy returns the merged intervals of active appointments on date.
func (b *book) busy(date civil.Date) []Interval {
	var merged []Interval
	for _, a := range b.days[date] {
		if !a.Status.Active() {
			continue
		}
		iv := a.Interval()
		if n := len(merged); n > 0 && iv.Start <= merged[n-1].End {
			if iv.End > merged[n-1].End {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

func (b *book) active(date civil.Date) []Appointment {
	var out []Appointment
	for _, a := range b.days[date] {
		if a.Status.Active() {
			out = append(out, *a)
		}
	}
	return out
}

// gaps yields open minus busy, both sorted, keeping gaps of at least minLen
// minutes. It stops early when yield returns false.
func gaps(open, busy []Interval, minLen int, yield func(Interval) bool) bool {
	emit := func(iv Interval) bool {
		if iv.Len() >= minLen {
			return yield(iv)
		}
		return true
	}
	for _, o := range open {
		cur := o.Start
		for _, bz := range busy {
			if bz.End <= cur {
				continue
			}
			if bz.Start >= o.End {
				break
			}
			if bz.Start > cur && !emit(Interval{Start: cur, End: bz.Start}) {
				return false
			}
			cur = max(cur, bz.End)
			if cur >= o.End {
				break
			}
		}
		if cur < o.End && !emit(Interval{Start: cur, End: o.End}) {
			return false
		}
	}
	return true
}

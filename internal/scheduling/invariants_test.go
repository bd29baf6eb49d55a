package scheduling

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"
)

// TestRandomOperations drives the engine with a random mix of operations
// and checks the scheduling invariants after every step.
func TestRandomOperations(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(42, 7))
	e := newTestEngine(t)
	dates := []civil.Date{wednesday, wednesday.AddDays(1)}
	profs := []string{"p1", "p2"}
	var ids []string

	for step := 0; step < 2000; step++ {
		date := dates[rng.IntN(len(dates))]
		start := Minute(rng.IntN(int(MinutesPerDay)/5)) * 5
		duration := 5 * (1 + rng.IntN(12))

		switch op := rng.IntN(6); {
		case op <= 1 || len(ids) == 0:
			req := BookingRequest{
				ProfessionalID: profs[rng.IntN(len(profs))],
				PatientID:      "patient",
				Date:           date,
				Start:          start,
				Duration:       duration,
			}
			a, err := e.Book(ctx, req)
			if err == nil {
				ids = append(ids, a.ID)
				requireContained(t, e, a)
			} else {
				requireDomainError(t, err)
			}
		case op == 2:
			id := ids[rng.IntN(len(ids))]
			before, err := e.Get(id)
			require.NoError(t, err)
			a, err := e.Reschedule(ctx, id, date, start, duration)
			if err == nil {
				requireContained(t, e, a)
			} else {
				requireDomainError(t, err)
				after, err := e.Get(id)
				require.NoError(t, err)
				require.Equal(t, before, after, "failed reschedule must not change the appointment")
			}
		case op == 3:
			_, err := e.Cancel(ctx, ids[rng.IntN(len(ids))])
			if err != nil {
				requireDomainError(t, err)
			}
		case op == 4:
			_, err := e.Confirm(ctx, ids[rng.IntN(len(ids))])
			if err != nil {
				requireDomainError(t, err)
			}
		default:
			_, err := e.Complete(ctx, ids[rng.IntN(len(ids))])
			if err != nil {
				requireDomainError(t, err)
			}
		}

		for _, p := range profs {
			for _, d := range dates {
				requireNoOverlap(t, e, p, d)
				requireFreeSlotsPartition(t, e, p, d)
			}
		}
	}
	require.NotEmpty(t, ids)
}

func requireDomainError(t *testing.T, err error) {
	t.Helper()
	for _, target := range []error{ErrInvalidRequest, ErrOutsideWorkingHours, ErrSlotConflict, ErrInvalidTransition} {
		if errors.Is(err, target) {
			return
		}
	}
	t.Fatalf("unexpected error: %v", err)
}

func requireContained(t *testing.T, e *Engine, a Appointment) {
	t.Helper()
	p, err := e.Professional(a.ProfessionalID)
	require.NoError(t, err)
	require.True(t, p.Hours.covers(weekdayOf(a.Date), a.Interval()), "appointment %s outside working hours", a.ID)
}

func requireNoOverlap(t *testing.T, e *Engine, prof string, date civil.Date) {
	t.Helper()
	s, err := e.Schedule(prof, date)
	require.NoError(t, err)
	for i := 1; i < len(s.Appointments); i++ {
		prev, cur := s.Appointments[i-1], s.Appointments[i]
		require.LessOrEqual(t, prev.Start, cur.Start, "schedule must be ordered")
		require.False(t, prev.Interval().Overlaps(cur.Interval()), "%s overlaps %s", prev.ID, cur.ID)
	}
}

// requireFreeSlotsPartition checks free slots and booked minutes exactly
// cover the working hours, minute by minute.
func requireFreeSlotsPartition(t *testing.T, e *Engine, prof string, date civil.Date) {
	t.Helper()
	p, err := e.Professional(prof)
	require.NoError(t, err)
	seq, err := e.FreeSlots(prof, date, 0)
	require.NoError(t, err)
	s, err := e.Schedule(prof, date)
	require.NoError(t, err)

	var open, covered [MinutesPerDay]int
	for _, o := range p.Hours.On(weekdayOf(date)) {
		for m := o.Start; m < o.End; m++ {
			open[m] = 1
		}
	}
	for iv := range seq {
		for m := iv.Start; m < iv.End; m++ {
			covered[m]++
		}
	}
	for _, a := range s.Appointments {
		for m := a.Start; m < a.End(); m++ {
			covered[m]++
		}
	}
	require.True(t, slices.Equal(open[:], covered[:]), "free slots and bookings must partition working hours on %s %s", prof, date)
}

func TestWeekdayOf(t *testing.T) {
	require.Equal(t, time.Wednesday, weekdayOf(wednesday))
	require.Equal(t, time.Sunday, weekdayOf(civil.Date{Year: 2024, Month: time.May, Day: 19}))
}

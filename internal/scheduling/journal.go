package scheduling

import "context"

type ChangeKind string

const (
	ChangeBooked      ChangeKind = "booked"
	ChangeRescheduled ChangeKind = "rescheduled"
	ChangeConfirmed   ChangeKind = "confirmed"
	ChangeCompleted   ChangeKind = "completed"
	ChangeCanceled    ChangeKind = "canceled"
)

// Change describes one committed mutation. Before is nil for bookings.
type Change struct {
	Kind   ChangeKind
	Before *Appointment
	After  Appointment
}

// Journal receives every mutation while the professional's lock is held
// and before the change becomes visible. Returning an error aborts the
// mutation.
type Journal interface {
	Append(ctx context.Context, c Change) error
}

type JournalFunc func(ctx context.Context, c Change) error

func (f JournalFunc) Append(ctx context.Context, c Change) error {
	return f(ctx, c)
}

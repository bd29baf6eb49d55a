package scheduling

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// legalFrom lists, per target status, the statuses a transition may start from.
var legalFrom = map[Status][]Status{
	StatusConfirmed: {StatusScheduled},
	StatusCompleted: {StatusConfirmed},
	StatusCanceled:  {StatusScheduled, StatusConfirmed},
}

var changeFor = map[Status]ChangeKind{
	StatusConfirmed: ChangeConfirmed,
	StatusCompleted: ChangeCompleted,
	StatusCanceled:  ChangeCanceled,
}

// Engine owns the appointments of one clinic. Each professional has its
// own lock; operations on different professionals never contend.
type Engine struct {
	books sync.Map // professional id -> *book
	index sync.Map // appointment id -> professional id

	journal Journal
	now     func() time.Time
	newID   func() string
}

type Option func(*Engine)

func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterProfessional adds a professional with validated working hours.
func (e *Engine) RegisterProfessional(p Professional) error {
	if p.ID == "" {
		return fmt.Errorf("%w: professional id is required", ErrInvalidRequest)
	}
	if err := p.Hours.Validate(); err != nil {
		return err
	}
	p.Hours = p.Hours.Normalize()
	if _, loaded := e.books.LoadOrStore(p.ID, newBook(p)); loaded {
		return fmt.Errorf("%w: professional %s", ErrDuplicate, p.ID)
	}
	return nil
}

// SetWorkingHours replaces a professional's hours. Existing appointments
// are kept even if they fall outside the new hours.
func (e *Engine) SetWorkingHours(professionalID string, hours WorkingHours) error {
	b, err := e.book(professionalID)
	if err != nil {
		return err
	}
	if err := hours.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	b.prof.Hours = hours.Normalize()
	b.mu.Unlock()
	return nil
}

func (e *Engine) Professional(id string) (Professional, error) {
	b, err := e.book(id)
	if err != nil {
		return Professional{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.prof, nil
}

// Professionals returns every registered professional ordered by name.
func (e *Engine) Professionals() []Professional {
	var out []Professional
	e.books.Range(func(_, v any) bool {
		b := v.(*book)
		b.mu.RLock()
		out = append(out, b.prof)
		b.mu.RUnlock()
		return true
	})
	slices.SortFunc(out, func(a, b Professional) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Book validates req and commits a new scheduled appointment.
func (e *Engine) Book(ctx context.Context, req BookingRequest) (Appointment, error) {
	b, err := e.book(req.ProfessionalID)
	if err != nil {
		return Appointment{}, err
	}
	iv, err := slotInterval(req.Date, req.Start, req.Duration)
	if err != nil {
		return Appointment{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.admit(req.Date, iv, ""); err != nil {
		return Appointment{}, err
	}

	now := e.now()
	appt := &Appointment{
		ID:             e.newID(),
		ProfessionalID: req.ProfessionalID,
		PatientID:      req.PatientID,
		Date:           req.Date,
		Start:          req.Start,
		Duration:       req.Duration,
		Procedure:      req.Procedure,
		Status:         StatusScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.append(ctx, Change{Kind: ChangeBooked, After: *appt}); err != nil {
		return Appointment{}, err
	}
	b.insert(appt)
	e.index.Store(appt.ID, b.prof.ID)
	return *appt, nil
}

// Reschedule moves an appointment to a new slot. On failure the stored
// appointment is unchanged.
func (e *Engine) Reschedule(ctx context.Context, id string, date civil.Date, start Minute, duration int) (Appointment, error) {
	b, err := e.owner(id)
	if err != nil {
		return Appointment{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.byID[id]
	if !ok {
		return Appointment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if a.Status == StatusCanceled || a.Status == StatusCompleted {
		return Appointment{}, fmt.Errorf("%w: appointment %s is %s, cannot reschedule", ErrInvalidTransition, id, a.Status)
	}
	iv, err := slotInterval(date, start, duration)
	if err != nil {
		return Appointment{}, err
	}
	if err := b.admit(date, iv, id); err != nil {
		return Appointment{}, err
	}

	before := *a
	next := before
	next.Date = date
	next.Start = start
	next.Duration = duration
	next.Status = StatusScheduled
	next.UpdatedAt = e.now()

	if err := e.append(ctx, Change{Kind: ChangeRescheduled, Before: &before, After: next}); err != nil {
		return Appointment{}, err
	}
	b.remove(a)
	*a = next
	b.insert(a)
	return next, nil
}

// Cancel is idempotent for canceled appointments.
func (e *Engine) Cancel(ctx context.Context, id string) (Appointment, error) {
	return e.transition(ctx, id, StatusCanceled)
}

func (e *Engine) Confirm(ctx context.Context, id string) (Appointment, error) {
	return e.transition(ctx, id, StatusConfirmed)
}

func (e *Engine) Complete(ctx context.Context, id string) (Appointment, error) {
	return e.transition(ctx, id, StatusCompleted)
}

func (e *Engine) transition(ctx context.Context, id string, to Status) (Appointment, error) {
	b, err := e.owner(id)
	if err != nil {
		return Appointment{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.byID[id]
	if !ok {
		return Appointment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if to == StatusCanceled && a.Status == StatusCanceled {
		return *a, nil
	}
	if !slices.Contains(legalFrom[to], a.Status) {
		return Appointment{}, transitionError(id, a.Status, to)
	}

	before := *a
	next := before
	next.Status = to
	next.UpdatedAt = e.now()
	if err := e.append(ctx, Change{Kind: changeFor[to], Before: &before, After: next}); err != nil {
		return Appointment{}, err
	}
	*a = next
	return next, nil
}

func (e *Engine) Get(id string) (Appointment, error) {
	b, err := e.owner(id)
	if err != nil {
		return Appointment{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.byID[id]
	if !ok {
		return Appointment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *a, nil
}

// FreeSlots returns the gaps of at least minDuration minutes left in the
// professional's working hours on date. Each iteration reads a fresh
// snapshot of the day.
func (e *Engine) FreeSlots(professionalID string, date civil.Date, minDuration int) (iter.Seq[Interval], error) {
	b, err := e.book(professionalID)
	if err != nil {
		return nil, err
	}
	if !date.IsValid() || minDuration < 0 {
		return nil, fmt.Errorf("%w: date %s min duration %d", ErrInvalidRequest, date, minDuration)
	}
	minLen := max(minDuration, 1)
	return func(yield func(Interval) bool) {
		b.mu.RLock()
		open := slices.Clone(b.prof.Hours.On(weekdayOf(date)))
		busy := b.busy(date)
		b.mu.RUnlock()
		gaps(open, busy, minLen, yield)
	}, nil
}

// Schedule derives the professional's day: active appointments in start
// order and every free interval.
func (e *Engine) Schedule(professionalID string, date civil.Date) (Schedule, error) {
	b, err := e.book(professionalID)
	if err != nil {
		return Schedule{}, err
	}
	if !date.IsValid() {
		return Schedule{}, fmt.Errorf("%w: date %s", ErrInvalidRequest, date)
	}

	b.mu.RLock()
	appts := b.active(date)
	open := b.prof.Hours.On(weekdayOf(date))
	busy := b.busy(date)
	var free []Interval
	gaps(open, busy, 1, func(iv Interval) bool {
		free = append(free, iv)
		return true
	})
	b.mu.RUnlock()

	return Schedule{
		ProfessionalID: professionalID,
		Date:           date,
		Appointments:   appts,
		Free:           free,
	}, nil
}

// Agenda lists the active appointments of every professional on date,
// ordered by start time then professional.
func (e *Engine) Agenda(date civil.Date) []Appointment {
	var out []Appointment
	e.books.Range(func(_, v any) bool {
		b := v.(*book)
		b.mu.RLock()
		out = append(out, b.active(date)...)
		b.mu.RUnlock()
		return true
	})
	slices.SortStableFunc(out, func(a, b Appointment) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.ProfessionalID, b.ProfessionalID))
	})
	return out
}

func (e *Engine) Summary(date civil.Date) DaySummary {
	s := DaySummary{Date: date, Counts: make(map[Status]int)}
	e.books.Range(func(_, v any) bool {
		b := v.(*book)
		b.mu.RLock()
		for _, a := range b.days[date] {
			s.Counts[a.Status]++
			s.Total++
		}
		b.mu.RUnlock()
		return true
	})
	return s
}

// Select returns copies of every appointment matching pred.
func (e *Engine) Select(pred func(Appointment) bool) []Appointment {
	var out []Appointment
	e.books.Range(func(_, v any) bool {
		b := v.(*book)
		b.mu.RLock()
		for _, day := range b.days {
			for _, a := range day {
				if pred(*a) {
					out = append(out, *a)
				}
			}
		}
		b.mu.RUnlock()
		return true
	})
	slices.SortFunc(out, func(a, b Appointment) int {
		return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.Start, b.Start), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Load inserts previously committed appointments without journaling them.
// It stops at the first invalid appointment; the engine should then be
// discarded.
func (e *Engine) Load(appts []Appointment) error {
	for _, in := range appts {
		b, err := e.book(in.ProfessionalID)
		if err != nil {
			return fmt.Errorf("load %s: %w", in.ID, err)
		}
		if in.ID == "" || !in.Status.Valid() {
			return fmt.Errorf("load %q: %w: status %q", in.ID, ErrInvalidRequest, in.Status)
		}
		iv, err := slotInterval(in.Date, in.Start, in.Duration)
		if err != nil {
			return fmt.Errorf("load %s: %w", in.ID, err)
		}
		if _, loaded := e.index.LoadOrStore(in.ID, in.ProfessionalID); loaded {
			return fmt.Errorf("load %s: %w", in.ID, ErrDuplicate)
		}

		b.mu.Lock()
		if in.Status.Active() {
			if c := b.conflict(in.Date, iv, ""); c != nil {
				b.mu.Unlock()
				e.index.Delete(in.ID)
				return fmt.Errorf("load %s: %w", in.ID, &ConflictError{AppointmentID: c.ID})
			}
		}
		a := in
		b.insert(&a)
		b.mu.Unlock()
	}
	return nil
}

func (e *Engine) book(professionalID string) (*book, error) {
	v, ok := e.books.Load(professionalID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfessional, professionalID)
	}
	return v.(*book), nil
}

func (e *Engine) owner(appointmentID string) (*book, error) {
	pid, ok := e.index.Load(appointmentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, appointmentID)
	}
	v, ok := e.books.Load(pid)
	if !ok {
		panic("scheduling: appointment " + appointmentID + " indexed to unknown professional")
	}
	return v.(*book), nil
}

func (e *Engine) append(ctx context.Context, c Change) error {
	if e.journal == nil {
		return nil
	}
	if err := e.journal.Append(ctx, c); err != nil {
		return fmt.Errorf("journal %s %s: %w", c.Kind, c.After.ID, err)
	}
	return nil
}

// admit runs the working-hours and conflict checks. Caller holds b.mu.
func (b *book) admit(date civil.Date, iv Interval, skip string) error {
	if !b.prof.Hours.covers(weekdayOf(date), iv) {
		return fmt.Errorf("%w: %s %s %s", ErrOutsideWorkingHours, b.prof.ID, date, iv)
	}
	if c := b.conflict(date, iv, skip); c != nil {
		return &ConflictError{AppointmentID: c.ID}
	}
	return nil
}

// slotInterval validates the calendar shape of a requested slot.
func slotInterval(date civil.Date, start Minute, duration int) (Interval, error) {
	if !date.IsValid() {
		return Interval{}, fmt.Errorf("%w: date %s", ErrInvalidRequest, date)
	}
	if duration <= 0 {
		return Interval{}, fmt.Errorf("%w: duration %d", ErrInvalidRequest, duration)
	}
	if !start.Valid() {
		return Interval{}, fmt.Errorf("%w: start %d", ErrInvalidRequest, int(start))
	}
	if duration > int(MinutesPerDay-start) {
		return Interval{}, fmt.Errorf("%w: %s + %dm crosses midnight", ErrInvalidRequest, start, duration)
	}
	return Interval{Start: start, End: start + Minute(duration)}, nil
}

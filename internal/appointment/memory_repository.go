package appointment

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/hackgods/clinic-agenda/internal/scheduling"
)

// MemoryRepository keeps everything in process. It backs tests and runs
// the API without a database.
type MemoryRepository struct {
	mu            sync.Mutex
	professionals map[string]scheduling.Professional
	appointments  map[string]scheduling.Appointment
	events        []EventLog
	failSaves     error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		professionals: make(map[string]scheduling.Professional),
		appointments:  make(map[string]scheduling.Appointment),
	}
}

func (r *MemoryRepository) ListProfessionals(_ context.Context) ([]scheduling.Professional, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.SortedFunc(maps.Values(r.professionals), func(a, b scheduling.Professional) int {
		return cmp.Compare(a.ID, b.ID)
	}), nil
}

func (r *MemoryRepository) SaveProfessional(_ context.Context, p scheduling.Professional) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Hours = p.Hours.Normalize()
	r.professionals[p.ID] = p
	return nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context) ([]scheduling.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.SortedFunc(maps.Values(r.appointments), func(a, b scheduling.Appointment) int {
		return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.Start, b.Start), cmp.Compare(a.ID, b.ID))
	}), nil
}

func (r *MemoryRepository) SaveAppointment(_ context.Context, a scheduling.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSaves != nil {
		return r.failSaves
	}
	r.appointments[a.ID] = a
	return nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// SetFailSaves makes SaveAppointment return err until reset with nil.
func (r *MemoryRepository) SetFailSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSaves = err
}

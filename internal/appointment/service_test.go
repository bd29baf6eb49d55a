package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-agenda/internal/config"
	"github.com/hackgods/clinic-agenda/internal/metrics"
	"github.com/hackgods/clinic-agenda/internal/scheduling"
)

var wednesday = civil.Date{Year: 2024, Month: time.May, Day: 15}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, _ string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func morning() scheduling.WorkingHours {
	return scheduling.WorkingHours{
		time.Wednesday: {{Start: scheduling.MustClock("08:00"), End: scheduling.MustClock("12:00")}},
	}
}

func newTestService(t *testing.T, repo *MemoryRepository, cfg config.Config) (*Service, *metrics.Metrics, *recordingPublisher) {
	t.Helper()
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	m := metrics.New("test")
	pub := &recordingPublisher{}
	svc := NewService(repo, pub, m, zerolog.Nop(), cfg)
	require.NoError(t, svc.Hydrate(context.Background()))
	return svc, m, pub
}

func bookAt(t *testing.T, svc *Service, start string, duration int) scheduling.Appointment {
	t.Helper()
	a, err := svc.Book(context.Background(), scheduling.BookingRequest{
		ProfessionalID: "p1",
		PatientID:      "patient-1",
		Date:           wednesday,
		Start:          scheduling.MustClock(start),
		Duration:       duration,
		Procedure:      "cleaning",
	})
	require.NoError(t, err)
	return a
}

func withDentist(t *testing.T, svc *Service) {
	t.Helper()
	require.NoError(t, svc.RegisterProfessional(context.Background(), scheduling.Professional{
		ID: "p1", Name: "Dra. Ana", Specialty: "orthodontics", Hours: morning(),
	}))
}

func TestService_BookPersistsAndEmits(t *testing.T) {
	repo := NewMemoryRepository()
	svc, m, pub := newTestService(t, repo, config.Config{})
	withDentist(t, svc)

	a := bookAt(t, svc, "09:00", 30)

	stored, err := repo.ListAppointments(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, a.ID, stored[0].ID)
	assert.Equal(t, scheduling.StatusScheduled, stored[0].Status)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
	assert.Equal(t, a.ID, events[0].AppointmentID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "09:00", payload["start"])
	assert.Equal(t, "2024-05-15", payload["date"])

	assert.Equal(t, []string{EventAppointmentBooked}, pub.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bookings.WithLabelValues("ok")))
}

func TestService_ConflictCounted(t *testing.T) {
	svc, m, _ := newTestService(t, NewMemoryRepository(), config.Config{})
	withDentist(t, svc)
	first := bookAt(t, svc, "09:00", 60)

	_, err := svc.Book(context.Background(), scheduling.BookingRequest{
		ProfessionalID: "p1",
		PatientID:      "patient-2",
		Date:           wednesday,
		Start:          scheduling.MustClock("09:30"),
		Duration:       30,
	})
	require.ErrorIs(t, err, scheduling.ErrSlotConflict)
	conflictID, ok := scheduling.ConflictingID(err)
	require.True(t, ok)
	assert.Equal(t, first.ID, conflictID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bookings.WithLabelValues("conflict")))
}

func TestService_JournalFailureLeavesEngineUntouched(t *testing.T) {
	repo := NewMemoryRepository()
	svc, m, pub := newTestService(t, repo, config.Config{})
	withDentist(t, svc)

	repo.SetFailSaves(errors.New("connection refused"))
	_, err := svc.Book(context.Background(), scheduling.BookingRequest{
		ProfessionalID: "p1",
		Date:           wednesday,
		Start:          scheduling.MustClock("09:00"),
		Duration:       30,
	})
	require.Error(t, err)

	assert.Empty(t, svc.Agenda(wednesday).Appointments)
	assert.Empty(t, repo.Events())
	assert.Empty(t, pub.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JournalFailures))

	repo.SetFailSaves(nil)
	bookAt(t, svc, "09:00", 30)
}

func TestService_HydrateRestoresState(t *testing.T) {
	repo := NewMemoryRepository()
	svc, _, _ := newTestService(t, repo, config.Config{})
	withDentist(t, svc)
	a := bookAt(t, svc, "10:00", 45)
	_, err := svc.Confirm(context.Background(), a.ID)
	require.NoError(t, err)

	restarted, _, _ := newTestService(t, repo, config.Config{})

	got, err := restarted.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusConfirmed, got.Status)

	_, err = restarted.Book(context.Background(), scheduling.BookingRequest{
		ProfessionalID: "p1",
		Date:           wednesday,
		Start:          scheduling.MustClock("10:30"),
		Duration:       30,
	})
	assert.ErrorIs(t, err, scheduling.ErrSlotConflict)
}

func TestService_RescheduleRecordsPrevious(t *testing.T) {
	repo := NewMemoryRepository()
	svc, _, _ := newTestService(t, repo, config.Config{})
	withDentist(t, svc)
	a := bookAt(t, svc, "09:00", 30)

	moved, err := svc.Reschedule(context.Background(), a.ID, wednesday, scheduling.MustClock("11:00"), 60)
	require.NoError(t, err)
	assert.Equal(t, a.ID, moved.ID)
	assert.Equal(t, scheduling.MustClock("11:00"), moved.Start)

	events := repo.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventAppointmentRescheduled, events[1].EventType)

	var payload struct {
		Start    string `json:"start"`
		Previous struct {
			Start    string `json:"start"`
			Duration int    `json:"duration"`
		} `json:"previous"`
	}
	require.NoError(t, json.Unmarshal(events[1].Payload, &payload))
	assert.Equal(t, "11:00", payload.Start)
	assert.Equal(t, "09:00", payload.Previous.Start)
	assert.Equal(t, 30, payload.Previous.Duration)

	_, err = svc.Reschedule(context.Background(), "missing", wednesday, scheduling.MustClock("11:00"), 60)
	assert.ErrorIs(t, err, scheduling.ErrNotFound)
}

func TestService_ConcurrentReschedulesChainPrevious(t *testing.T) {
	repo := NewMemoryRepository()
	svc, _, _ := newTestService(t, repo, config.Config{})
	withDentist(t, svc)
	a := bookAt(t, svc, "09:00", 30)

	const moves = 12
	var wg sync.WaitGroup
	for i := range moves {
		wg.Add(1)
		go func(start scheduling.Minute) {
			defer wg.Done()
			_, err := svc.Reschedule(context.Background(), a.ID, wednesday, start, 5)
			assert.NoError(t, err)
		}(scheduling.MustClock("08:00") + scheduling.Minute(5*i))
	}
	wg.Wait()

	final, err := svc.Get(a.ID)
	require.NoError(t, err)

	// Every state the appointment held is left exactly once, except the last.
	left := make(map[string]int)
	var moved []string
	for _, ev := range repo.Events() {
		if ev.EventType != EventAppointmentRescheduled {
			continue
		}
		var payload struct {
			Start    string `json:"start"`
			Previous struct {
				Start string `json:"start"`
			} `json:"previous"`
		}
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		left[payload.Previous.Start]++
		moved = append(moved, payload.Start)
	}
	require.Len(t, moved, moves)
	assert.Equal(t, 1, left["09:00"])
	assert.NotContains(t, left, final.Start.String())
	for _, start := range moved {
		if start != final.Start.String() {
			assert.Equal(t, 1, left[start], "state %s left %d times", start, left[start])
		}
	}
}

func TestService_CancelTwiceEmitsOnce(t *testing.T) {
	repo := NewMemoryRepository()
	svc, _, pub := newTestService(t, repo, config.Config{})
	withDentist(t, svc)
	a := bookAt(t, svc, "09:00", 30)

	for range 2 {
		got, err := svc.Cancel(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, scheduling.StatusCanceled, got.Status)
	}

	assert.Equal(t, []string{EventAppointmentBooked, EventAppointmentCanceled}, pub.types())

	_, err := svc.Confirm(context.Background(), a.ID)
	assert.ErrorIs(t, err, scheduling.ErrInvalidTransition)
}

func TestService_FreeSlots(t *testing.T) {
	svc, _, _ := newTestService(t, NewMemoryRepository(), config.Config{})
	withDentist(t, svc)
	bookAt(t, svc, "08:00", 240)

	slots, err := svc.FreeSlots("p1", wednesday, 0)
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)

	_, err = svc.FreeSlots("nobody", wednesday, 0)
	assert.ErrorIs(t, err, scheduling.ErrUnknownProfessional)
}

func TestService_ApplyRoster(t *testing.T) {
	repo := NewMemoryRepository()
	svc, _, _ := newTestService(t, repo, config.Config{})
	withDentist(t, svc)

	afternoon := scheduling.WorkingHours{
		time.Thursday: {{Start: scheduling.MustClock("13:00"), End: scheduling.MustClock("18:00")}},
	}
	err := svc.ApplyRoster(context.Background(), []scheduling.Professional{
		{ID: "p1", Name: "Dra. Ana", Hours: afternoon},
		{ID: "p2", Name: "Dr. Bruno", Hours: morning()},
	})
	require.NoError(t, err)

	p1, err := svc.Professional("p1")
	require.NoError(t, err)
	assert.Equal(t, afternoon.Normalize(), p1.Hours)

	profs, err := repo.ListProfessionals(context.Background())
	require.NoError(t, err)
	require.Len(t, profs, 2)
	assert.Equal(t, afternoon.Normalize(), profs[0].Hours)

	assert.Len(t, svc.Professionals(), 2)
}

func TestService_CompleteElapsed(t *testing.T) {
	svc, m, _ := newTestService(t, NewMemoryRepository(), config.Config{
		Location: time.FixedZone("BRT", -3*60*60),
	})
	withDentist(t, svc)
	ctx := context.Background()

	early := bookAt(t, svc, "08:00", 30)
	late := bookAt(t, svc, "10:00", 30)
	pending := bookAt(t, svc, "08:30", 30)
	for _, id := range []string{early.ID, late.ID} {
		_, err := svc.Confirm(ctx, id)
		require.NoError(t, err)
	}

	// 11:00 UTC is 08:00 at the clinic; nothing has ended yet.
	n, err := svc.CompleteElapsed(ctx, time.Date(2024, time.May, 15, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.CompleteElapsed(ctx, time.Date(2024, time.May, 15, 12, 45, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := svc.Get(early.ID)
	assert.Equal(t, scheduling.StatusCompleted, got.Status)
	got, _ = svc.Get(late.ID)
	assert.Equal(t, scheduling.StatusConfirmed, got.Status)
	got, _ = svc.Get(pending.ID)
	assert.Equal(t, scheduling.StatusScheduled, got.Status, "unconfirmed appointments are never completed")

	n, err = svc.CompleteElapsed(ctx, time.Date(2024, time.May, 16, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweptTotal))
}

func TestService_AgendaSummary(t *testing.T) {
	svc, _, _ := newTestService(t, NewMemoryRepository(), config.Config{})
	withDentist(t, svc)
	a := bookAt(t, svc, "09:00", 30)
	bookAt(t, svc, "10:00", 30)
	_, err := svc.Cancel(context.Background(), a.ID)
	require.NoError(t, err)

	agenda := svc.Agenda(wednesday)
	assert.Len(t, agenda.Appointments, 1, "canceled appointments are left out of the agenda")
	assert.Equal(t, 2, agenda.Summary.Total)
	assert.Equal(t, 1, agenda.Summary.Counts[scheduling.StatusCanceled])

	empty := svc.Agenda(wednesday.AddDays(1))
	assert.NotNil(t, empty.Appointments)
	assert.Zero(t, empty.Summary.Total)
}

func TestService_Today(t *testing.T) {
	svc, _, _ := newTestService(t, NewMemoryRepository(), config.Config{
		Location: time.FixedZone("BRT", -3*60*60),
	})
	got := svc.Today(time.Date(2024, time.May, 16, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, wednesday, got)
}

package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-agenda/internal/config"
	"github.com/hackgods/clinic-agenda/internal/metrics"
	"github.com/hackgods/clinic-agenda/internal/scheduling"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCanceled    = "APPOINTMENT_CANCELED"
)

var eventFor = map[scheduling.ChangeKind]string{
	scheduling.ChangeBooked:      EventAppointmentBooked,
	scheduling.ChangeRescheduled: EventAppointmentRescheduled,
	scheduling.ChangeConfirmed:   EventAppointmentConfirmed,
	scheduling.ChangeCompleted:   EventAppointmentCompleted,
	scheduling.ChangeCanceled:    EventAppointmentCanceled,
}

// Agenda is the clinic-wide view of one day.
type Agenda struct {
	Date         civil.Date               `json:"date"`
	Appointments []scheduling.Appointment `json:"appointments"`
	Summary      scheduling.DaySummary    `json:"summary"`
}

// Service hosts the scheduling engine of one clinic. Every engine mutation
// is journaled to the repository before it becomes visible; event log rows
// and stream messages follow on a best-effort basis.
type Service struct {
	engine  *scheduling.Engine
	repo    Repository
	events  EventPublisher
	metrics *metrics.Metrics
	log     zerolog.Logger
	cfg     config.Config
}

// NewService wires a fresh engine to repo. events may be nil.
func NewService(repo Repository, events EventPublisher, m *metrics.Metrics, log zerolog.Logger, cfg config.Config) *Service {
	s := &Service{
		repo:    repo,
		events:  events,
		metrics: m,
		log:     log.With().Str("component", "appointment").Logger(),
		cfg:     cfg,
	}
	if s.cfg.Location == nil {
		s.cfg.Location = time.UTC
	}
	if s.cfg.PersistTimeout <= 0 {
		s.cfg.PersistTimeout = 3 * time.Second
	}
	s.engine = scheduling.NewEngine(scheduling.WithJournal(scheduling.JournalFunc(s.persist)))
	return s
}

// Hydrate loads the roster and every stored appointment into the engine.
// It must run before the service takes traffic.
func (s *Service) Hydrate(ctx context.Context) error {
	profs, err := s.repo.ListProfessionals(ctx)
	if err != nil {
		return fmt.Errorf("list professionals: %w", err)
	}
	for _, p := range profs {
		if err := s.engine.RegisterProfessional(p); err != nil {
			return fmt.Errorf("register professional %s: %w", p.ID, err)
		}
	}

	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}
	if err := s.engine.Load(appts); err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}

	s.log.Info().Int("professionals", len(profs)).Int("appointments", len(appts)).Msg("engine hydrated")
	return nil
}

// ApplyRoster registers new professionals and replaces the hours of known
// ones.
func (s *Service) ApplyRoster(ctx context.Context, profs []scheduling.Professional) error {
	for _, p := range profs {
		if _, err := s.engine.Professional(p.ID); err == nil {
			if _, err := s.SetWorkingHours(ctx, p.ID, p.Hours); err != nil {
				return err
			}
			continue
		}
		if err := s.RegisterProfessional(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) RegisterProfessional(ctx context.Context, p scheduling.Professional) error {
	if p.ID == "" {
		return fmt.Errorf("%w: professional id is required", scheduling.ErrInvalidRequest)
	}
	if _, err := s.engine.Professional(p.ID); err == nil {
		return fmt.Errorf("%w: professional %s", scheduling.ErrDuplicate, p.ID)
	}
	if err := p.Hours.Validate(); err != nil {
		return err
	}
	if err := s.repo.SaveProfessional(ctx, p); err != nil {
		return fmt.Errorf("save professional %s: %w", p.ID, err)
	}
	if err := s.engine.RegisterProfessional(p); err != nil {
		return err
	}
	s.log.Info().Str("professional_id", p.ID).Msg("professional registered")
	return nil
}

func (s *Service) SetWorkingHours(ctx context.Context, professionalID string, hours scheduling.WorkingHours) (scheduling.Professional, error) {
	p, err := s.engine.Professional(professionalID)
	if err != nil {
		return scheduling.Professional{}, err
	}
	if err := hours.Validate(); err != nil {
		return scheduling.Professional{}, err
	}
	p.Hours = hours.Normalize()
	if err := s.repo.SaveProfessional(ctx, p); err != nil {
		return scheduling.Professional{}, fmt.Errorf("save professional %s: %w", p.ID, err)
	}
	if err := s.engine.SetWorkingHours(professionalID, p.Hours); err != nil {
		return scheduling.Professional{}, err
	}
	return p, nil
}

func (s *Service) Professionals() []scheduling.Professional {
	return s.engine.Professionals()
}

func (s *Service) Professional(id string) (scheduling.Professional, error) {
	return s.engine.Professional(id)
}

func (s *Service) Book(ctx context.Context, req scheduling.BookingRequest) (scheduling.Appointment, error) {
	appt, err := s.engine.Book(ctx, req)
	s.metrics.Bookings.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		s.log.Debug().Err(err).Str("professional_id", req.ProfessionalID).Msg("booking rejected")
		return scheduling.Appointment{}, err
	}

	s.logEvent(ctx, scheduling.ChangeBooked, appt, nil)
	return appt, nil
}

func (s *Service) Reschedule(ctx context.Context, id string, date civil.Date, start scheduling.Minute, duration int) (scheduling.Appointment, error) {
	var before scheduling.Appointment
	appt, err := s.engine.Reschedule(context.WithValue(ctx, priorKey{}, &before), id, date, start, duration)
	s.metrics.Transitions.WithLabelValues("reschedule", resultLabel(err)).Inc()
	if err != nil {
		return scheduling.Appointment{}, err
	}

	s.logEvent(ctx, scheduling.ChangeRescheduled, appt, &before)
	return appt, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (scheduling.Appointment, error) {
	before, err := s.engine.Get(id)
	if err == nil && before.Status == scheduling.StatusCanceled {
		return before, nil
	}
	return s.transition(ctx, "cancel", id, scheduling.ChangeCanceled, s.engine.Cancel)
}

func (s *Service) Confirm(ctx context.Context, id string) (scheduling.Appointment, error) {
	return s.transition(ctx, "confirm", id, scheduling.ChangeConfirmed, s.engine.Confirm)
}

func (s *Service) Complete(ctx context.Context, id string) (scheduling.Appointment, error) {
	return s.transition(ctx, "complete", id, scheduling.ChangeCompleted, s.engine.Complete)
}

func (s *Service) transition(
	ctx context.Context,
	op, id string,
	kind scheduling.ChangeKind,
	fn func(context.Context, string) (scheduling.Appointment, error),
) (scheduling.Appointment, error) {
	appt, err := fn(ctx, id)
	s.metrics.Transitions.WithLabelValues(op, resultLabel(err)).Inc()
	if err != nil {
		return scheduling.Appointment{}, err
	}
	s.logEvent(ctx, kind, appt, nil)
	return appt, nil
}

func (s *Service) Get(id string) (scheduling.Appointment, error) {
	return s.engine.Get(id)
}

func (s *Service) Schedule(professionalID string, date civil.Date) (scheduling.Schedule, error) {
	return s.engine.Schedule(professionalID, date)
}

// FreeSlots materializes the free intervals for one professional's day.
func (s *Service) FreeSlots(professionalID string, date civil.Date, minDuration int) ([]scheduling.Interval, error) {
	start := time.Now()
	seq, err := s.engine.FreeSlots(professionalID, date, minDuration)
	if err != nil {
		return nil, err
	}
	slots := slices.Collect(seq)
	s.metrics.FreeSlotLatency.Observe(time.Since(start).Seconds())
	if slots == nil {
		slots = []scheduling.Interval{}
	}
	return slots, nil
}

func (s *Service) Agenda(date civil.Date) Agenda {
	appts := s.engine.Agenda(date)
	if appts == nil {
		appts = []scheduling.Appointment{}
	}
	return Agenda{
		Date:         date,
		Appointments: appts,
		Summary:      s.engine.Summary(date),
	}
}

// Today returns the current date in the clinic's time zone.
func (s *Service) Today(now time.Time) civil.Date {
	return civil.DateOf(now.In(s.cfg.Location))
}

// CompleteElapsed completes every confirmed appointment that ended at or
// before now in the clinic's time zone. It returns how many were completed.
func (s *Service) CompleteElapsed(ctx context.Context, now time.Time) (int, error) {
	local := now.In(s.cfg.Location)
	today := civil.DateOf(local)
	minute := scheduling.Minute(local.Hour()*60 + local.Minute())

	due := s.engine.Select(func(a scheduling.Appointment) bool {
		if a.Status != scheduling.StatusConfirmed {
			return false
		}
		return a.Date.Before(today) || (a.Date == today && a.End() <= minute)
	})

	var completed int
	var errs []error
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		_, err := s.Complete(ctx, a.ID)
		switch {
		case err == nil:
			completed++
			s.metrics.SweptTotal.Inc()
		case errors.Is(err, scheduling.ErrInvalidTransition):
			// Canceled or rescheduled since the scan.
		default:
			s.log.Error().Err(err).Str("appointment_id", a.ID).Msg("failed to complete elapsed appointment")
			errs = append(errs, err)
		}
	}

	return completed, errors.Join(errs...)
}

// persist is the engine journal. It runs under the professional's lock.
// priorKey carries a *scheduling.Appointment that persist fills with the
// journaled Before state, read under the professional's lock.
type priorKey struct{}

func (s *Service) persist(ctx context.Context, c scheduling.Change) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()

	if err := s.repo.SaveAppointment(ctx, c.After); err != nil {
		s.metrics.JournalFailures.Inc()
		s.log.Error().Err(err).Str("appointment_id", c.After.ID).Str("change", string(c.Kind)).Msg("journal write failed")
		return err
	}
	if prior, ok := ctx.Value(priorKey{}).(*scheduling.Appointment); ok && c.Before != nil {
		*prior = *c.Before
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, kind scheduling.ChangeKind, appt scheduling.Appointment, before *scheduling.Appointment) {
	eventType := eventFor[kind]

	payload := map[string]any{
		"professional_id": appt.ProfessionalID,
		"patient_id":      appt.PatientID,
		"date":            appt.Date.String(),
		"start":           appt.Start.String(),
		"duration":        appt.Duration,
		"procedure":       appt.Procedure,
		"status":          appt.Status,
	}
	if before != nil {
		payload["previous"] = map[string]any{
			"date":     before.Date.String(),
			"start":    before.Start.String(),
			"duration": before.Duration,
			"status":   before.Status,
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appt.ID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Str("appointment_id", appt.ID).Msg("failed to insert event log")
	}

	if s.events != nil {
		if err := s.events.Publish(ctx, eventType, appt.ID, data); err != nil {
			s.log.Warn().Err(err).Str("event", eventType).Str("appointment_id", appt.ID).Msg("failed to publish event")
		}
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, scheduling.ErrSlotConflict):
		return "conflict"
	case errors.Is(err, scheduling.ErrOutsideWorkingHours):
		return "outside_hours"
	case errors.Is(err, scheduling.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, scheduling.ErrUnknownProfessional):
		return "unknown_professional"
	case errors.Is(err, scheduling.ErrNotFound):
		return "not_found"
	case errors.Is(err, scheduling.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}

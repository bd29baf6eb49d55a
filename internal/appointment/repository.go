package appointment

import (
	"context"
	"time"

	"github.com/hackgods/clinic-agenda/internal/scheduling"
)

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID string
	Payload       []byte
	CreatedAt     time.Time
}

// Repository persists the clinic roster, the appointment journal and the
// event log.
type Repository interface {
	ListProfessionals(ctx context.Context) ([]scheduling.Professional, error)
	SaveProfessional(ctx context.Context, p scheduling.Professional) error

	ListAppointments(ctx context.Context) ([]scheduling.Appointment, error)
	SaveAppointment(ctx context.Context, a scheduling.Appointment) error

	InsertEvent(ctx context.Context, ev EventLog) error
}

// EventPublisher fans appointment events out to other processes.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, appointmentID string, payload []byte) error
}

package api

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hackgods/clinic-agenda/internal/appointment"
	"github.com/hackgods/clinic-agenda/internal/scheduling"
)

type BookAppointmentRequest struct {
	ProfessionalID string `json:"professional_id" validate:"required"`
	PatientID      string `json:"patient_id" validate:"required"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	Start          string `json:"start" validate:"required,datetime=15:04"`
	Duration       int    `json:"duration" validate:"required,gt=0,lte=1440"`
	Procedure      string `json:"procedure" validate:"max=200"`
}

type RescheduleRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Start    string `json:"start" validate:"required,datetime=15:04"`
	Duration int    `json:"duration" validate:"required,gt=0,lte=1440"`
}

// WorkingHoursRequest maps lowercase weekday names to "HH:MM-HH:MM" ranges.
type WorkingHoursRequest struct {
	Hours map[string][]string `json:"hours" validate:"required,dive,keys,oneof=sunday monday tuesday wednesday thursday friday saturday,endkeys,dive,required"`
}

type AppointmentResponse struct {
	ID             string    `json:"id"`
	ProfessionalID string    `json:"professional_id"`
	PatientID      string    `json:"patient_id"`
	Date           string    `json:"date"`
	Start          string    `json:"start"`
	End            string    `json:"end"`
	Duration       int       `json:"duration"`
	Procedure      string    `json:"procedure,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type SlotResponse struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Duration int    `json:"duration"`
}

type ProfessionalResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Specialty string              `json:"specialty,omitempty"`
	Hours     map[string][]string `json:"hours"`
}

type ScheduleResponse struct {
	ProfessionalID string                `json:"professional_id"`
	Date           string                `json:"date"`
	Appointments   []AppointmentResponse `json:"appointments"`
	Free           []SlotResponse        `json:"free"`
}

type FreeSlotsResponse struct {
	ProfessionalID string         `json:"professional_id"`
	Date           string         `json:"date"`
	MinDuration    int            `json:"min_duration"`
	Slots          []SlotResponse `json:"slots"`
}

type AgendaResponse struct {
	Date         string                `json:"date"`
	Appointments []AppointmentResponse `json:"appointments"`
	Total        int                   `json:"total"`
	Counts       map[string]int        `json:"counts"`
}

type ErrorResponse struct {
	Error                    string            `json:"error"`
	Details                  string            `json:"details,omitempty"`
	Fields                   map[string]string `json:"fields,omitempty"`
	ConflictingAppointmentID string            `json:"conflicting_appointment_id,omitempty"`
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		ProfessionalID: a.ProfessionalID,
		PatientID:      a.PatientID,
		Date:           a.Date.String(),
		Start:          a.Start.String(),
		End:            a.End().String(),
		Duration:       a.Duration,
		Procedure:      a.Procedure,
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []scheduling.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toSlotResponses(ivs []scheduling.Interval) []SlotResponse {
	out := make([]SlotResponse, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, SlotResponse{Start: iv.Start.String(), End: iv.End.String(), Duration: iv.Len()})
	}
	return out
}

func toProfessionalResponse(p scheduling.Professional) ProfessionalResponse {
	hours := make(map[string][]string, len(p.Hours))
	for d, ivs := range p.Hours {
		ranges := make([]string, 0, len(ivs))
		for _, iv := range ivs {
			ranges = append(ranges, iv.String())
		}
		hours[strings.ToLower(d.String())] = ranges
	}
	return ProfessionalResponse{ID: p.ID, Name: p.Name, Specialty: p.Specialty, Hours: hours}
}

func toScheduleResponse(s scheduling.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ProfessionalID: s.ProfessionalID,
		Date:           s.Date.String(),
		Appointments:   toAppointmentResponses(s.Appointments),
		Free:           toSlotResponses(s.Free),
	}
}

func toAgendaResponse(a appointment.Agenda) AgendaResponse {
	counts := make(map[string]int, len(a.Summary.Counts))
	for status, n := range a.Summary.Counts {
		counts[string(status)] = n
	}
	return AgendaResponse{
		Date:         a.Date.String(),
		Appointments: toAppointmentResponses(a.Appointments),
		Total:        a.Summary.Total,
		Counts:       counts,
	}
}

func parseDate(s string) (civil.Date, error) {
	return civil.ParseDate(s)
}

package scheduling

import (
	"time"

	"cloud.google.com/go/civil"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Active reports whether an appointment in this status occupies its slot.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusCompleted
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

type Professional struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Specialty string       `json:"specialty,omitempty"`
	Hours     WorkingHours `json:"hours"`
}

type Appointment struct {
	ID             string     `json:"id"`
	ProfessionalID string     `json:"professional_id"`
	PatientID      string     `json:"patient_id"`
	Date           civil.Date `json:"date"`
	Start          Minute     `json:"start"`
	Duration       int        `json:"duration"`
	Procedure      string     `json:"procedure"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (a Appointment) End() Minute {
	return a.Start + Minute(a.Duration)
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.Start, End: a.End()}
}

// BookingRequest is the transient input to Engine.Book.
type BookingRequest struct {
	ProfessionalID string
	PatientID      string
	Date           civil.Date
	Start          Minute
	Duration       int
	Procedure      string
}

// Schedule is the derived view of one professional's day.
type Schedule struct {
	ProfessionalID string        `json:"professional_id"`
	Date           civil.Date    `json:"date"`
	Appointments   []Appointment `json:"appointments"`
	Free           []Interval    `json:"free"`
}

// DaySummary counts a day's appointments per status, canceled included.
type DaySummary struct {
	Date   civil.Date     `json:"date"`
	Total  int            `json:"total"`
	Counts map[Status]int `json:"counts"`
}

func weekdayOf(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

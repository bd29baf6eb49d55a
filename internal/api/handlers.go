package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hackgods/clinic-agenda/internal/appointment"
	"github.com/hackgods/clinic-agenda/internal/roster"
	"github.com/hackgods/clinic-agenda/internal/scheduling"
)

type handlers struct {
	svc      *appointment.Service
	validate *validator.Validate
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *handlers) book(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	start, err := scheduling.ParseClock(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
		return
	}

	appt, err := h.svc.Book(r.Context(), scheduling.BookingRequest{
		ProfessionalID: req.ProfessionalID,
		PatientID:      req.PatientID,
		Date:           date,
		Start:          start,
		Duration:       req.Duration,
		Procedure:      req.Procedure,
	})
	if err != nil {
		handleSchedulingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		handleSchedulingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) reschedule(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	start, err := scheduling.ParseClock(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), chi.URLParam(r, "id"), date, start, req.Duration)
	if err != nil {
		handleSchedulingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

func (h *handlers) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Confirm)
}

func (h *handlers) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Complete)
}

func (h *handlers) transition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id string) (scheduling.Appointment, error),
) {
	appt, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSchedulingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) listProfessionals(w http.ResponseWriter, r *http.Request) {
	profs := h.svc.Professionals()
	resp := make([]ProfessionalResponse, 0, len(profs))
	for _, p := range profs {
		resp = append(resp, toProfessionalResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getProfessional(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Professional(chi.URLParam(r, "id"))
	if err != nil {
		handleSchedulingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfessionalResponse(p))
}

func (h *handlers) setWorkingHours(w http.ResponseWriter, r *http.Request) {
	var req WorkingHoursRequest
	if !h.decode(w, r, &req) {
		return
	}

	hours, err := roster.ParseHours(req.Hours)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_hours", err.Error())
		return
	}

	p, err := h.svc.SetWorkingHours(r.Context(), chi.URLParam(r, "id"), hours)
	if err != nil {
		handleSchedulingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfessionalResponse(p))
}

func (h *handlers) schedule(w http.ResponseWriter, r *http.Request) {
	date, ok := queryDate(w, r)
	if !ok {
		return
	}

	s, err := h.svc.Schedule(chi.URLParam(r, "id"), date)
	if err != nil {
		handleSchedulingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(s))
}

func (h *handlers) freeSlots(w http.ResponseWriter, r *http.Request) {
	date, ok := queryDate(w, r)
	if !ok {
		return
	}

	minDuration := 0
	if raw := r.URL.Query().Get("min_duration"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_min_duration", "min_duration must be a non-negative integer")
			return
		}
		minDuration = n
	}

	id := chi.URLParam(r, "id")
	slots, err := h.svc.FreeSlots(id, date, minDuration)
	if err != nil {
		handleSchedulingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FreeSlotsResponse{
		ProfessionalID: id,
		Date:           date.String(),
		MinDuration:    minDuration,
		Slots:          toSlotResponses(slots),
	})
}

func (h *handlers) agenda(w http.ResponseWriter, r *http.Request) {
	date := h.svc.Today(time.Now())
	if r.URL.Query().Has("date") {
		var ok bool
		if date, ok = queryDate(w, r); !ok {
			return
		}
	}
	writeJSON(w, http.StatusOK, toAgendaResponse(h.svc.Agenda(date)))
}

// decode parses and validates a JSON body, writing a 400 on failure.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "validation_failed",
				Details: "request body failed validation",
				Fields:  fields,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func queryDate(w http.ResponseWriter, r *http.Request) (civil.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
		return civil.Date{}, false
	}
	date, err := parseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return civil.Date{}, false
	}
	return date, true
}

func handleSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrUnknownProfessional):
		writeError(w, http.StatusNotFound, "professional_not_found", err.Error())
	case errors.Is(err, scheduling.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotConflict):
		conflictID, _ := scheduling.ConflictingID(err)
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:                    "slot_conflict",
			Details:                  err.Error(),
			ConflictingAppointmentID: conflictID,
		})
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate_identifier", err.Error())
	case errors.Is(err, scheduling.ErrOutsideWorkingHours):
		writeError(w, http.StatusUnprocessableEntity, "outside_working_hours", err.Error())
	case errors.Is(err, scheduling.ErrInvalidRequest):
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

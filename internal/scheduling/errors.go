package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProfessional = errors.New("unknown professional")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrOutsideWorkingHours = errors.New("outside working hours")
	ErrSlotConflict        = errors.New("slot conflict")
	ErrNotFound            = errors.New("appointment not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrDuplicate           = errors.New("duplicate identifier")
)

// ConflictError reports the appointment that already holds the slot.
// It matches ErrSlotConflict with errors.Is.
type ConflictError struct {
	AppointmentID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with appointment %s", ErrSlotConflict, e.AppointmentID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSlotConflict
}

// ConflictingID extracts the conflicting appointment id from err, if any.
func ConflictingID(err error) (string, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.AppointmentID, true
	}
	return "", false
}

func transitionError(id string, from, to Status) error {
	return fmt.Errorf("%w: appointment %s is %s, cannot move to %s", ErrInvalidTransition, id, from, to)
}

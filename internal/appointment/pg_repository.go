package appointment

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-agenda/internal/scheduling"
)

type PgRepository struct {
	pool     *pgxpool.Pool
	clinicID string
}

func NewPgRepository(pool *pgxpool.Pool, clinicID string) *PgRepository {
	return &PgRepository{pool: pool, clinicID: clinicID}
}

// Helpers

func scanAppointment(row pgx.Row) (scheduling.Appointment, error) {
	var (
		a     scheduling.Appointment
		date  time.Time
		start int
	)

	err := row.Scan(
		&a.ID,
		&a.ProfessionalID,
		&a.PatientID,
		&date,
		&start,
		&a.Duration,
		&a.Procedure,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return scheduling.Appointment{}, err
	}

	a.Date = civil.DateOf(date)
	a.Start = scheduling.Minute(start)
	return a, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Interface methods

func (r *PgRepository) ListProfessionals(ctx context.Context) ([]scheduling.Professional, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(specialty, '')
		FROM professionals
		WHERE clinic_id = $1
		ORDER BY id
	`, r.clinicID)
	if err != nil {
		return nil, fmt.Errorf("query professionals: %w", err)
	}

	profs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (scheduling.Professional, error) {
		p := scheduling.Professional{Hours: scheduling.WorkingHours{}}
		err := row.Scan(&p.ID, &p.Name, &p.Specialty)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan professionals: %w", err)
	}

	byID := make(map[string]*scheduling.Professional, len(profs))
	for i := range profs {
		byID[profs[i].ID] = &profs[i]
	}

	rows, err = r.pool.Query(ctx, `
		SELECT wh.professional_id, wh.weekday, wh.start_minute, wh.end_minute
		FROM working_hours wh
		JOIN professionals p ON p.id = wh.professional_id
		WHERE p.clinic_id = $1
		ORDER BY wh.professional_id, wh.weekday, wh.start_minute
	`, r.clinicID)
	if err != nil {
		return nil, fmt.Errorf("query working hours: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			profID     string
			weekday    int
			start, end int
		)
		if err := rows.Scan(&profID, &weekday, &start, &end); err != nil {
			return nil, fmt.Errorf("scan working hours: %w", err)
		}
		p, ok := byID[profID]
		if !ok {
			continue
		}
		day := time.Weekday(weekday)
		p.Hours[day] = append(p.Hours[day], scheduling.Interval{
			Start: scheduling.Minute(start),
			End:   scheduling.Minute(end),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate working hours: %w", err)
	}

	return profs, nil
}

// SaveProfessional upserts the professional and replaces its working hours
// in one transaction.
func (r *PgRepository) SaveProfessional(ctx context.Context, p scheduling.Professional) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO professionals (id, clinic_id, name, specialty, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    specialty = EXCLUDED.specialty,
		    updated_at = now()
		WHERE professionals.clinic_id = EXCLUDED.clinic_id
	`, p.ID, r.clinicID, p.Name, nullableString(p.Specialty))
	if err != nil {
		return fmt.Errorf("upsert professional %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("professional %s belongs to another clinic: %w", p.ID, scheduling.ErrDuplicate)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM working_hours WHERE professional_id = $1`, p.ID); err != nil {
		return fmt.Errorf("clear working hours %s: %w", p.ID, err)
	}

	var rows [][]any
	for day, intervals := range p.Hours {
		for _, iv := range intervals {
			rows = append(rows, []any{p.ID, int16(day), int32(iv.Start), int32(iv.End)})
		}
	}
	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"working_hours"},
			[]string{"professional_id", "weekday", "start_minute", "end_minute"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy working hours %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit professional %s: %w", p.ID, err)
	}
	return nil
}

func (r *PgRepository) ListAppointments(ctx context.Context) ([]scheduling.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, patient_id, date, start_minute, duration_minutes,
		       procedure, status, created_at, updated_at
		FROM appointments
		WHERE clinic_id = $1
		ORDER BY date, start_minute, id
	`, r.clinicID)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var result []scheduling.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		result = append(result, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) SaveAppointment(ctx context.Context, a scheduling.Appointment) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (id, clinic_id, professional_id, patient_id, date, start_minute,
		                          duration_minutes, procedure, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET date = EXCLUDED.date,
		    start_minute = EXCLUDED.start_minute,
		    duration_minutes = EXCLUDED.duration_minutes,
		    procedure = EXCLUDED.procedure,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at
		WHERE appointments.clinic_id = EXCLUDED.clinic_id
	`, a.ID, r.clinicID, a.ProfessionalID, a.PatientID, a.Date.In(time.UTC), int(a.Start),
		a.Duration, a.Procedure, string(a.Status), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert appointment %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %s belongs to another clinic: %w", a.ID, scheduling.ErrDuplicate)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (clinic_id, event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, r.clinicID, ev.EventType, nullableString(ev.AppointmentID), ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

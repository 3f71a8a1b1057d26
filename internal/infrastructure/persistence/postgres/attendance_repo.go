package postgres

import (
	"context"
	"fmt"

	"github.com/darb-academy/lifecycle-worker/internal/domain/attendance"
	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRepository implements attendance.Repository for PostgreSQL.
type AttendanceRepository struct {
	conn *Connection
}

// NewAttendanceRepository creates a new AttendanceRepository.
func NewAttendanceRepository(conn *Connection) *AttendanceRepository {
	return &AttendanceRepository{conn: conn}
}

const attendanceColumns = `id, student_id, student_name, group_id, group_name, status, date, recorded_by, created_at`

// ListByDate returns every record for the day regardless of status.
func (r *AttendanceRepository) ListByDate(ctx context.Context, date string) ([]*attendance.Record, error) {
	return r.list(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE date = $1`, date)
}

// ListByDateAndStatus returns the day's records with the given status.
func (r *AttendanceRepository) ListByDateAndStatus(ctx context.Context, date string, status attendance.Status) ([]*attendance.Record, error) {
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE date = $1 AND status = $2 ORDER BY created_at, id`,
		date, string(status))
}

// ListInWindow returns records inside the window with one of the statuses.
func (r *AttendanceRepository) ListInWindow(ctx context.Context, window timeutil.Window, statuses ...attendance.Status) ([]*attendance.Record, error) {
	if len(statuses) == 0 {
		return r.list(ctx,
			`SELECT `+attendanceColumns+` FROM attendance WHERE date BETWEEN $1 AND $2`,
			window.From, window.To)
	}
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE date BETWEEN $1 AND $2 AND status = ANY($3)`,
		window.From, window.To, statusStrings(statuses))
}

// ListForStudent returns one student's records inside the window.
func (r *AttendanceRepository) ListForStudent(ctx context.Context, studentID string, window timeutil.Window) ([]*attendance.Record, error) {
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE student_id = $1 AND date BETWEEN $2 AND $3`,
		studentID, window.From, window.To)
}

// InsertBatch inserts records chunk by chunk. A (student_id, date) pair that
// already exists is skipped by ON CONFLICT, so overlapping runs stay duplicate-free.
// Only the rows actually inserted are returned, including those from chunks
// that committed before a failing one.
func (r *AttendanceRepository) InsertBatch(ctx context.Context, records []*attendance.Record, chunkSize int) ([]*attendance.Record, error) {
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
	}

	return writeChunked(ctx, r.conn, records, chunkSize, func(tx pgx.Tx, chunk []*attendance.Record) ([]*attendance.Record, error) {
		batch := &pgx.Batch{}
		for _, rec := range chunk {
			batch.Queue(`
				INSERT INTO attendance (
					id, student_id, student_name, group_id, group_name,
					status, date, recorded_by, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (student_id, date) DO NOTHING
				RETURNING id
			`,
				rec.ID,
				rec.StudentID,
				rec.StudentName,
				rec.GroupID,
				rec.GroupName,
				string(rec.Status),
				rec.Date,
				rec.RecordedBy,
				rec.CreatedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		var chunkInserted []*attendance.Record
		for _, rec := range chunk {
			var id string
			err := br.QueryRow().Scan(&id)
			if IsNoRows(err) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to insert attendance: %w", err)
			}
			chunkInserted = append(chunkInserted, rec)
		}
		if err := br.Close(); err != nil {
			return nil, err
		}
		return chunkInserted, nil
	})
}

func (r *AttendanceRepository) list(ctx context.Context, query string, args ...any) ([]*attendance.Record, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var records []*attendance.Record
	for rows.Next() {
		var rec attendance.Record
		var status string
		if err := rows.Scan(
			&rec.ID,
			&rec.StudentID,
			&rec.StudentName,
			&rec.GroupID,
			&rec.GroupName,
			&status,
			&rec.Date,
			&rec.RecordedBy,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		rec.Status = attendance.Status(status)
		records = append(records, &rec)
	}

	return records, rows.Err()
}

func statusStrings(statuses []attendance.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// HOLIDAY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// HolidayRepository implements attendance.HolidayRepository for PostgreSQL.
type HolidayRepository struct {
	conn *Connection
}

// NewHolidayRepository creates a new HolidayRepository.
func NewHolidayRepository(conn *Connection) *HolidayRepository {
	return &HolidayRepository{conn: conn}
}

// ListCovering returns every period, global or per-group, that covers the day.
func (r *HolidayRepository) ListCovering(ctx context.Context, date string) ([]attendance.HolidayPeriod, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id::text, group_id, date_from, date_to, name
		FROM holidays
		WHERE date_from <= $1 AND date_to >= $1
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var periods []attendance.HolidayPeriod
	for rows.Next() {
		var p attendance.HolidayPeriod
		var groupID *string
		if err := rows.Scan(&p.ID, &groupID, &p.From, &p.To, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		if groupID != nil {
			p.GroupID = *groupID
		}
		periods = append(periods, p)
	}

	return periods, rows.Err()
}

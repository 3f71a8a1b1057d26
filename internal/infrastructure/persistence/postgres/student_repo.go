package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/darb-academy/lifecycle-worker/internal/domain/student"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `id, full_name, type, status, group_id, group_name, user_id,
	promoted_at, demoted_at, created_at, updated_at`

// List returns students matching the filter.
func (r *StudentRepository) List(ctx context.Context, filter student.ListFilter) ([]*student.Student, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("type = ANY($%d)", len(args)))
	}

	query := `SELECT ` + studentColumns + ` FROM students`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var students []*student.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, s)
	}

	return students, rows.Err()
}

// PromoteBatch moves reserve students to their target main group and returns
// the promotions that changed a row. The type guard in the WHERE clause makes
// a repeated promotion a no-op, so a stale roster yields nothing.
func (r *StudentRepository) PromoteBatch(ctx context.Context, promotions []student.Promotion, chunkSize int) ([]student.Promotion, error) {
	return writeChunked(ctx, r.conn, promotions, chunkSize, func(tx pgx.Tx, chunk []student.Promotion) ([]student.Promotion, error) {
		batch := &pgx.Batch{}
		for _, p := range chunk {
			batch.Queue(`
				UPDATE students SET
					type = 'main',
					group_id = $1,
					group_name = $2,
					promoted_at = $3,
					updated_at = $3
				WHERE id = $4 AND type = 'reserve'
			`, p.ToGroupID, p.ToGroupName, p.PromotedAt, p.StudentID)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		var applied []student.Promotion
		for _, p := range chunk {
			tag, err := br.Exec()
			if err != nil {
				return nil, fmt.Errorf("failed to promote student: %w", err)
			}
			if tag.RowsAffected() == 1 {
				applied = append(applied, p)
			}
		}
		if err := br.Close(); err != nil {
			return nil, err
		}
		return applied, nil
	})
}

func scanStudent(row pgx.Row) (*student.Student, error) {
	var s student.Student
	var rosterType, status string

	err := row.Scan(
		&s.ID,
		&s.FullName,
		&rosterType,
		&status,
		&s.GroupID,
		&s.GroupName,
		&s.UserID,
		&s.PromotedAt,
		&s.DemotedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Type = student.RosterType(rosterType)
	s.Status = student.Status(status)
	return &s, nil
}

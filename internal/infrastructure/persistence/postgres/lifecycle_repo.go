package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/demotion"
	"github.com/darb-academy/lifecycle-worker/internal/domain/group"
	"github.com/darb-academy/lifecycle-worker/internal/domain/progress"
	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// rulesKey is the app_settings row holding the rules document.
const rulesKey = "rules"

// SettingsRepository reads documents from app_settings.
type SettingsRepository struct {
	conn *Connection
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(conn *Connection) *SettingsRepository {
	return &SettingsRepository{conn: conn}
}

// GetRulesDocument returns the raw rules JSON or shared.ErrNotFound.
func (r *SettingsRepository) GetRulesDocument(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := r.conn.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1`, rulesKey).Scan(&doc)
	if IsNoRows(err) {
		return nil, fmt.Errorf("rules document: %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rules document: %w", err)
	}
	return doc, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DEMOTION ALERTS
// ══════════════════════════════════════════════════════════════════════════════

// AlertRepository implements demotion.Repository for PostgreSQL.
type AlertRepository struct {
	conn *Connection
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(conn *Connection) *AlertRepository {
	return &AlertRepository{conn: conn}
}

// UpsertMerge inserts new alerts as pending and merges fresh stats into
// existing ones. The status column is never part of the update set.
func (r *AlertRepository) UpsertMerge(ctx context.Context, alerts []*demotion.Alert) ([]*demotion.Alert, error) {
	return writeChunked(ctx, r.conn, alerts, DefaultChunkSize, func(tx pgx.Tx, chunk []*demotion.Alert) ([]*demotion.Alert, error) {
		batch := &pgx.Batch{}
		for _, a := range chunk {
			stats, err := json.Marshal(a.Stats)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal alert stats: %w", err)
			}
			batch.Queue(`
				INSERT INTO demotion_alerts (
					id, student_id, student_name, group_id, group_name, reason, trigger,
					stats, target_reserve_id, status, month, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), 'pending', $10, $11, $11)
				ON CONFLICT (id) DO UPDATE SET
					student_name = EXCLUDED.student_name,
					group_id = EXCLUDED.group_id,
					group_name = EXCLUDED.group_name,
					reason = EXCLUDED.reason,
					trigger = EXCLUDED.trigger,
					stats = EXCLUDED.stats,
					target_reserve_id = EXCLUDED.target_reserve_id,
					updated_at = EXCLUDED.updated_at
				RETURNING status, created_at
			`,
				a.ID,
				a.StudentID,
				a.StudentName,
				a.GroupID,
				a.GroupName,
				a.Reason,
				string(a.Trigger),
				stats,
				a.TargetReserveID,
				a.Month,
				a.UpdatedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		out := make([]*demotion.Alert, 0, len(chunk))
		for _, a := range chunk {
			var status string
			var createdAt time.Time
			if err := br.QueryRow().Scan(&status, &createdAt); err != nil {
				return nil, fmt.Errorf("failed to upsert alert %s: %w", a.ID, err)
			}
			saved := *a
			saved.Status = demotion.Status(status)
			saved.CreatedAt = createdAt
			out = append(out, &saved)
		}
		if err := br.Close(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// ListForStudent returns one student's session scores inside the window.
func (r *ProgressRepository) ListForStudent(ctx context.Context, studentID string, window timeutil.Window) ([]*progress.Record, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id::text, student_id, date,
		       lesson::float8, revision::float8, recitation::float8, homework::float8
		FROM progress_records
		WHERE student_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date
	`, studentID, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	defer rows.Close()

	var records []*progress.Record
	for rows.Next() {
		var p progress.Record
		if err := rows.Scan(&p.ID, &p.StudentID, &p.Date, &p.Lesson, &p.Revision, &p.Recitation, &p.Homework); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		records = append(records, &p)
	}

	return records, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUPS
// ══════════════════════════════════════════════════════════════════════════════

// GroupRepository implements group.Repository for PostgreSQL.
type GroupRepository struct {
	conn *Connection
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(conn *Connection) *GroupRepository {
	return &GroupRepository{conn: conn}
}

// GetByID returns a group or shared.ErrGroupNotFound.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*group.Group, error) {
	var g group.Group
	var kind string
	err := r.conn.QueryRow(ctx, `SELECT id, name, kind FROM groups WHERE id = $1`, id).Scan(&g.ID, &g.Name, &kind)
	if IsNoRows(err) {
		return nil, shared.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	g.Kind = group.Kind(kind)
	return &g, nil
}

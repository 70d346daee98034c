package project

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/reelcut/reelcut/internal/db"
	"github.com/reelcut/reelcut/internal/timeline"
)

type Repository interface {
	SaveTimeline(ctx context.Context, tl timeline.Timeline) error
	// LoadTimeline reports false when nothing has been saved yet.
	LoadTimeline(ctx context.Context) (timeline.Timeline, bool, error)

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	HasOpenJob(ctx context.Context, jobType, clipID string) (bool, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveTimeline replaces the stored layers and clips with tl in one
// transaction.
func (r *SQLiteRepository) SaveTimeline(ctx context.Context, tl timeline.Timeline) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM clips"); err != nil {
			return fmt.Errorf("clear clips: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM layers"); err != nil {
			return fmt.Errorf("clear layers: %w", err)
		}

		for pos, l := range tl.Layers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO layers (id, name, kind, position) VALUES (?, ?, ?, ?)
			`, l.ID, l.Name, string(l.Kind), pos); err != nil {
				return fmt.Errorf("insert layer %s: %w", l.ID, err)
			}
			for _, c := range l.Items {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO clips (id, layer_id, kind, start_time, duration, content, trim_start, original_duration, logo_overlay, updated_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				`, c.ID, l.ID, string(c.Kind), c.StartTime, c.Duration, c.Content,
					c.Metadata.TrimStart, nullFloat(c.Metadata.OriginalDuration),
					nullString(c.Metadata.LogoOverlay), now); err != nil {
					return fmt.Errorf("insert clip %s: %w", c.ID, err)
				}
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO config (key, value) VALUES (?, ?), (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, ConfigTimelineDuration, strconv.FormatFloat(tl.Duration, 'f', -1, 64),
			ConfigSavedAt, now)
		return err
	})
}

func (r *SQLiteRepository) LoadTimeline(ctx context.Context) (timeline.Timeline, bool, error) {
	raw, err := r.GetConfig(ctx, ConfigTimelineDuration)
	if err != nil {
		return timeline.Timeline{}, false, err
	}
	if raw == "" {
		return timeline.Timeline{}, false, nil
	}
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return timeline.Timeline{}, false, fmt.Errorf("stored timeline duration %q: %w", raw, err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, kind FROM layers ORDER BY position`)
	if err != nil {
		return timeline.Timeline{}, false, err
	}
	tl := timeline.Timeline{Duration: duration}
	index := map[string]int{}
	for rows.Next() {
		var l timeline.Layer
		var kind string
		if err := rows.Scan(&l.ID, &l.Name, &kind); err != nil {
			rows.Close()
			return timeline.Timeline{}, false, err
		}
		l.Kind = timeline.Kind(kind)
		l.Items = []timeline.Clip{}
		index[l.ID] = len(tl.Layers)
		tl.Layers = append(tl.Layers, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return timeline.Timeline{}, false, err
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT id, layer_id, kind, start_time, duration, content, trim_start, original_duration, logo_overlay
		FROM clips ORDER BY layer_id, start_time, id
	`)
	if err != nil {
		return timeline.Timeline{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var c timeline.Clip
		var layerID, kind string
		var original sql.NullFloat64
		var logo sql.NullString
		if err := rows.Scan(&c.ID, &layerID, &kind, &c.StartTime, &c.Duration, &c.Content,
			&c.Metadata.TrimStart, &original, &logo); err != nil {
			return timeline.Timeline{}, false, err
		}
		c.Kind = timeline.Kind(kind)
		if original.Valid {
			c.Metadata.OriginalDuration = timeline.Float(original.Float64)
		}
		c.Metadata.LogoOverlay = logo.String

		i, ok := index[layerID]
		if !ok {
			continue
		}
		tl.Layers[i].Items = append(tl.Layers[i].Items, c)
	}
	return tl, true, rows.Err()
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, clip_id, progress, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Status, nullString(j.ClipID), j.Progress, nullString(j.Error),
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, status, clip_id, progress, error, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	j, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, status, clip_id, progress, error, created_at, updated_at
		FROM jobs ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, status, clip_id, progress, error, created_at, updated_at
		FROM jobs WHERE status = 'pending' ORDER BY created_at ASC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *SQLiteRepository) HasOpenJob(ctx context.Context, jobType, clipID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs WHERE type = ? AND clip_id = ? AND status IN ('pending', 'running')
	`, jobType, clipID).Scan(&n)
	return n > 0, err
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, nullString(errorMsg), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = datetime('now') WHERE id = ?
	`, progress, id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func scanJob(scan func(dest ...any) error) (*Job, error) {
	var j Job
	var clipID, errMsg sql.NullString
	var createdAt, updatedAt string

	if err := scan(&j.ID, &j.Type, &j.Status, &clipID, &j.Progress, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.ClipID = clipID.String
	j.Error = errMsg.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// parseTime accepts both RFC3339 and SQLite's datetime('now') format.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

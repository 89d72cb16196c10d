package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

const sessionColumns = `id, user_id, domain_name, event, session_start, session_end, path_history,
	bounce, location, device_stats, referrer, interaction, created_at`

// InsertSession stores an immutable session record.
func (r *Repository) InsertSession(ctx context.Context, rec *model.SessionRecord) error {
	location, err := nullableJSON(rec.Location)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	device, err := nullableJSON(rec.DeviceStats)
	if err != nil {
		return fmt.Errorf("encode device stats: %w", err)
	}
	referrer, err := nullableJSON(rec.Referrer)
	if err != nil {
		return fmt.Errorf("encode referrer: %w", err)
	}
	interaction, err := json.Marshal(rec.Interaction)
	if err != nil {
		return fmt.Errorf("encode interaction: %w", err)
	}

	query := `INSERT INTO session_data (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.DomainName,
		rec.Event,
		rec.SessionStart,
		rec.SessionEnd,
		pq.Array(rec.PathHistory),
		rec.Bounce,
		location,
		device,
		referrer,
		interaction,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// SessionStats counts the domain's sessions that started within rng and
// averages their duration in seconds. Negative spans count as zero.
func (r *Repository) SessionStats(ctx context.Context, domainName string, rng model.TimeRange) (model.SessionStats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(AVG(GREATEST(EXTRACT(EPOCH FROM session_end - session_start), 0)), 0)::float8
		FROM session_data
		WHERE domain_name = $1
		  AND ($2::timestamptz IS NULL OR session_start >= $2)
		  AND ($3::timestamptz IS NULL OR session_start < $3)
	`

	from, to := rangeArgs(rng)
	var stats model.SessionStats
	if err := r.pool.QueryRow(ctx, query, domainName, from, to).Scan(&stats.Count, &stats.AvgSeconds); err != nil {
		return model.SessionStats{}, fmt.Errorf("failed to get session stats: %w", err)
	}
	return stats, nil
}

// ListSessions returns the domain's sessions within rng, newest first.
func (r *Repository) ListSessions(ctx context.Context, domainName string, rng model.TimeRange, limit int) ([]*model.SessionRecord, error) {
	query := `SELECT ` + sessionColumns + `
		FROM session_data
		WHERE domain_name = $1
		  AND ($2::timestamptz IS NULL OR session_start >= $2)
		  AND ($3::timestamptz IS NULL OR session_start < $3)
		ORDER BY session_start DESC, id DESC
		LIMIT $4`

	from, to := rangeArgs(rng)
	rows, err := r.pool.Query(ctx, query, domainName, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return collectSessions(rows)
}

// ListUserSessions returns one user's sessions within rng, oldest first.
func (r *Repository) ListUserSessions(ctx context.Context, userID string, rng model.TimeRange) ([]*model.SessionRecord, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	query := `SELECT ` + sessionColumns + `
		FROM session_data
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR session_start >= $2)
		  AND ($3::timestamptz IS NULL OR session_start < $3)
		ORDER BY session_start, id`

	from, to := rangeArgs(rng)
	rows, err := r.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}
	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]*model.SessionRecord, error) {
	defer rows.Close()

	sessions := make([]*model.SessionRecord, 0)
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	var paths []string
	var location, device, referrer, interaction []byte

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.DomainName,
		&rec.Event,
		&rec.SessionStart,
		&rec.SessionEnd,
		pq.Array(&paths),
		&rec.Bounce,
		&location,
		&device,
		&referrer,
		&interaction,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.PathHistory = paths
	if rec.PathHistory == nil {
		rec.PathHistory = []string{}
	}
	if rec.Location, err = decodeNullableJSON[model.Location](location); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	if rec.DeviceStats, err = decodeNullableJSON[model.DeviceStats](device); err != nil {
		return nil, fmt.Errorf("decode device stats: %w", err)
	}
	if rec.Referrer, err = decodeNullableJSON[model.Attribution](referrer); err != nil {
		return nil, fmt.Errorf("decode referrer: %w", err)
	}
	if len(interaction) > 0 {
		if err := json.Unmarshal(interaction, &rec.Interaction); err != nil {
			return nil, fmt.Errorf("decode interaction: %w", err)
		}
	}
	return &rec, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// UpsertUserSession appends user.SessionIDs to an existing user, or creates
// the user with them. It reports whether the user was created. An existing
// user keeps its join date; an empty domain or username is filled in.
func (r *Repository) UpsertUserSession(ctx context.Context, user *model.UserRecord) (bool, error) {
	query := `
		INSERT INTO users (id, username, domain_name, date_joined, session_ids)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			session_ids = users.session_ids || EXCLUDED.session_ids,
			domain_name = CASE WHEN users.domain_name = '' THEN EXCLUDED.domain_name ELSE users.domain_name END,
			username    = CASE WHEN users.username = '' THEN EXCLUDED.username ELSE users.username END
		RETURNING (xmax = 0)
	`

	var created bool
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.DomainName,
		user.DateJoined,
		pq.Array(user.SessionIDs),
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert user: %w", err)
	}
	return created, nil
}

// CreateUser inserts a user with no sessions.
func (r *Repository) CreateUser(ctx context.Context, user *model.UserRecord) error {
	query := `
		INSERT INTO users (id, username, domain_name, date_joined, session_ids)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.DomainName,
		user.DateJoined,
		pq.Array(user.SessionIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (r *Repository) GetUser(ctx context.Context, id string) (*model.UserRecord, error) {
	query := `
		SELECT id, username, domain_name, date_joined, session_ids
		FROM users
		WHERE id = $1
	`

	var user model.UserRecord
	var sessionIDs []string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.DomainName,
		&user.DateJoined,
		pq.Array(&sessionIDs),
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	user.SessionIDs = sessionIDs
	if user.SessionIDs == nil {
		user.SessionIDs = []string{}
	}
	return &user, nil
}

// CountUsers counts the domain's users who joined within rng.
func (r *Repository) CountUsers(ctx context.Context, domainName string, rng model.TimeRange) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM users
		WHERE domain_name = $1
		  AND ($2::timestamptz IS NULL OR date_joined >= $2)
		  AND ($3::timestamptz IS NULL OR date_joined < $3)
	`

	from, to := rangeArgs(rng)
	var n int64
	if err := r.pool.QueryRow(ctx, query, domainName, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// TopUsers ranks the domain's users by session count.
func (r *Repository) TopUsers(ctx context.Context, domainName string, limit int) ([]model.UserSummary, error) {
	query := `
		SELECT id, username, cardinality(session_ids)
		FROM users
		WHERE domain_name = $1
		ORDER BY cardinality(session_ids) DESC, id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, domainName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top users: %w", err)
	}
	defer rows.Close()

	users := make([]model.UserSummary, 0)
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.SessionCount); err != nil {
			return nil, fmt.Errorf("failed to scan user summary: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

const adminColumns = `id, username, password_hash, domain_name, role, status, feature_list, users_list, created_at`

// CreateAdmin inserts an admin. Usernames are unique, and so are non-empty
// domains.
func (r *Repository) CreateAdmin(ctx context.Context, admin *model.AdminRecord) error {
	query := `INSERT INTO admins (` + adminColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	usersList := admin.UsersList
	if usersList == nil {
		usersList = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		admin.ID,
		admin.Username,
		admin.PasswordHash,
		admin.DomainName,
		admin.Role,
		admin.Status,
		pq.Array(admin.FeatureList),
		pq.Array(usersList),
		admin.CreatedAt,
	)
	if err != nil {
		switch uniqueConstraint(err) {
		case "admins_username_key":
			return model.ErrUsernameExists
		case "idx_admins_domain":
			return model.ErrDomainClaimed
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

// GetAdminByID retrieves an admin by ID.
func (r *Repository) GetAdminByID(ctx context.Context, id string) (*model.AdminRecord, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE id = $1`
	return r.getAdmin(ctx, query, id)
}

// GetAdminByUsername retrieves an admin by username.
func (r *Repository) GetAdminByUsername(ctx context.Context, username string) (*model.AdminRecord, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE username = $1`
	return r.getAdmin(ctx, query, username)
}

func (r *Repository) getAdmin(ctx context.Context, query string, arg string) (*model.AdminRecord, error) {
	admin, err := scanAdmin(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return admin, nil
}

// ListAdmins returns every admin ordered by username.
func (r *Repository) ListAdmins(ctx context.Context) ([]*model.AdminRecord, error) {
	query := `SELECT ` + adminColumns + ` FROM admins ORDER BY username`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	admins := make([]*model.AdminRecord, 0)
	for rows.Next() {
		admin, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, admin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admins: %w", err)
	}
	return admins, nil
}

// UpdateAdminStatus sets the approval state.
func (r *Repository) UpdateAdminStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admins SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update admin status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAdminNotFound
	}
	return nil
}

// UpdateAdminFeatures replaces the feature list.
func (r *Repository) UpdateAdminFeatures(ctx context.Context, id string, features []string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admins SET feature_list = $2 WHERE id = $1`, id, pq.Array(features))
	if err != nil {
		return fmt.Errorf("failed to update admin features: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAdminNotFound
	}
	return nil
}

// AddAdminUser records userID as a visitor of the domain's admin. Adding
// a user twice is a no-op. A domain without an admin yields ErrAdminNotFound.
func (r *Repository) AddAdminUser(ctx context.Context, domainName, userID string) error {
	query := `
		UPDATE admins
		SET users_list = CASE
			WHEN $2::text = ANY(users_list) THEN users_list
			ELSE array_append(users_list, $2::text)
		END
		WHERE domain_name = $1 AND domain_name <> ''
	`

	tag, err := r.pool.Exec(ctx, query, domainName, userID)
	if err != nil {
		return fmt.Errorf("failed to add admin user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAdminNotFound
	}
	return nil
}

func scanAdmin(row pgx.Row) (*model.AdminRecord, error) {
	var admin model.AdminRecord
	var features, users []string

	err := row.Scan(
		&admin.ID,
		&admin.Username,
		&admin.PasswordHash,
		&admin.DomainName,
		&admin.Role,
		&admin.Status,
		pq.Array(&features),
		pq.Array(&users),
		&admin.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	admin.FeatureList = features
	admin.UsersList = users
	return &admin, nil
}

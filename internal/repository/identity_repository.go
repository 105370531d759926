package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/maquiflow/fleet-portal/internal/auth"
)

// Identity mirrors the 'users' table. user_id is the business key the rest of
// the system (sessions, tenant keys, parent links) refers to.
type Identity struct {
	UserID       int64
	Name         string
	DocumentID   string
	Email        string
	PasswordHash string
	RoleID       auth.Role
	ParentID     *int64
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateIdentityInput carries the fields for a new identity. ParentID must be
// set by the authorization gate's caller, never taken from a request body.
type CreateIdentityInput struct {
	Name       string
	DocumentID string
	Email      string
	Password   string
	RoleID     auth.Role
	ParentID   *int64
}

// UpdateIdentityFields carries a partial update; empty fields are left alone.
type UpdateIdentityFields struct {
	Name       string
	DocumentID string
	Email      string
	Password   string
}

type IdentityRepo struct{ DB *sql.DB }

func NewIdentityRepo(db *sql.DB) *IdentityRepo { return &IdentityRepo{DB: db} }

const identityCols = "user_id, name, document_id, email, password_hash, role_id, parent_id, deleted_at, created_at, updated_at"

func scanIdentity(row *sql.Row) (*Identity, error) {
	var (
		id      Identity
		parent  sql.NullInt64
		deleted sql.NullTime
	)
	err := row.Scan(&id.UserID, &id.Name, &id.DocumentID, &id.Email, &id.PasswordHash,
		&id.RoleID, &parent, &deleted, &id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if parent.Valid {
		id.ParentID = &parent.Int64
	}
	if deleted.Valid {
		id.DeletedAt = &deleted.Time
	}
	return &id, nil
}

// GetByIdentifier resolves a login identifier, which may be a numeric user id
// or an email address. Soft-deleted rows are never returned.
func (r *IdentityRepo) GetByIdentifier(ctx context.Context, identifier string) (*Identity, error) {
	identifier = strings.TrimSpace(identifier)
	if uid, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		return r.GetByID(ctx, uid)
	}
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+identityCols+" FROM users WHERE email = ? AND deleted_at IS NULL LIMIT 1",
		strings.ToLower(identifier))
	return scanIdentity(row)
}

// GetByID fetches a live identity by user id.
func (r *IdentityRepo) GetByID(ctx context.Context, userID int64) (*Identity, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+identityCols+" FROM users WHERE user_id = ? AND deleted_at IS NULL LIMIT 1",
		userID)
	return scanIdentity(row)
}

// Create inserts a new identity. When the new identity is a tenant admin its
// module configuration row is created in the same transaction, so a tenant
// admin can never exist without one (defaults: users on, the rest off).
func (r *IdentityRepo) Create(ctx context.Context, in CreateIdentityInput, bcryptCost int) (*Identity, error) {
	hash, err := auth.HashPassword(in.Password, bcryptCost)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var taken bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = ? AND deleted_at IS NULL)",
		email).Scan(&taken); err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailExists
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (name, document_id, email, password_hash, role_id, parent_id) VALUES (?,?,?,?,?,?)",
		in.Name, in.DocumentID, email, hash, in.RoleID, in.ParentID)
	if err != nil {
		return nil, err
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if in.RoleID == auth.RoleTenantAdmin {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tenant_modules (username) VALUES (?)",
			strconv.FormatInt(userID, 10)); err != nil {
			return nil, err
		}
	}

	created, err := scanIdentity(tx.QueryRowContext(ctx,
		"SELECT "+identityCols+" FROM users WHERE user_id = ? LIMIT 1", userID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// Update applies the non-empty fields to a child identity of parentID. The
// parent scope is part of the WHERE clause, so a tenant admin guessing another
// tenant's user id gets ErrNotFound, indistinguishable from a missing row.
// A present password is re-hashed.
func (r *IdentityRepo) Update(ctx context.Context, userID, parentID int64, in UpdateIdentityFields, bcryptCost int) (*Identity, error) {
	var probe int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM users WHERE user_id = ? AND parent_id = ? AND deleted_at IS NULL LIMIT 1",
		userID, parentID).Scan(&probe)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if in.Name != "" {
		sets = append(sets, "name = ?")
		args = append(args, in.Name)
	}
	if in.DocumentID != "" {
		sets = append(sets, "document_id = ?")
		args = append(args, in.DocumentID)
	}
	if in.Email != "" {
		sets = append(sets, "email = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(in.Email)))
	}
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password, bcryptCost)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "password_hash = ?")
		args = append(args, hash)
	}
	if len(sets) > 0 {
		args = append(args, userID)
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE user_id = ?", args...); err != nil {
			return nil, err
		}
	}
	return r.GetByID(ctx, userID)
}

// SoftDelete marks a child identity of parentID as deleted. Same scoping rule
// as Update: a wrong parent yields ErrNotFound.
func (r *IdentityRepo) SoftDelete(ctx context.Context, userID, parentID int64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE user_id = ? AND parent_id = ? AND deleted_at IS NULL",
		userID, parentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteAny marks any identity as deleted regardless of parent. Reserved
// for the root admin's tenant-deletion cascade.
func (r *IdentityRepo) SoftDeleteAny(ctx context.Context, userID int64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE user_id = ? AND deleted_at IS NULL",
		userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListChildren returns the live identities created by parentID.
func (r *IdentityRepo) ListChildren(ctx context.Context, parentID int64) ([]*Identity, error) {
	return r.list(ctx,
		"SELECT "+identityCols+" FROM users WHERE parent_id = ? AND deleted_at IS NULL ORDER BY user_id",
		parentID)
}

// ListAll returns every live identity. Root-admin tenant listing only.
func (r *IdentityRepo) ListAll(ctx context.Context) ([]*Identity, error) {
	return r.list(ctx, "SELECT "+identityCols+" FROM users WHERE deleted_at IS NULL ORDER BY user_id")
}

func (r *IdentityRepo) list(ctx context.Context, query string, args ...any) ([]*Identity, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Identity
	for rows.Next() {
		var (
			id      Identity
			parent  sql.NullInt64
			deleted sql.NullTime
		)
		if err := rows.Scan(&id.UserID, &id.Name, &id.DocumentID, &id.Email, &id.PasswordHash,
			&id.RoleID, &parent, &deleted, &id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, err
		}
		if parent.Valid {
			id.ParentID = &parent.Int64
		}
		if deleted.Valid {
			id.DeletedAt = &deleted.Time
		}
		out = append(out, &id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PurgeDeletedBefore physically removes identities soft-deleted before cutoff.
func (r *IdentityRepo) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM users WHERE deleted_at IS NOT NULL AND deleted_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

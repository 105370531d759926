package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// MachineType is a catalog entry scoped to its owning tenant admin.
// MachineCode is the caller-assigned small integer (1..32767); it carries no
// uniqueness constraint, so codes may be reused after a soft delete.
type MachineType struct {
	ID          int64
	OwnerID     int64
	MachineCode int
	Name        string
	DeletedAt   *time.Time
	CreatedAt   time.Time
}

type MachineTypeRepo struct{ DB *sql.DB }

func NewMachineTypeRepo(db *sql.DB) *MachineTypeRepo { return &MachineTypeRepo{DB: db} }

const machineTypeCols = "id, owner_id, machine_code, name, deleted_at, created_at"

func scanMachineType(row *sql.Row) (*MachineType, error) {
	var (
		mt      MachineType
		deleted sql.NullTime
	)
	err := row.Scan(&mt.ID, &mt.OwnerID, &mt.MachineCode, &mt.Name, &deleted, &mt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if deleted.Valid {
		mt.DeletedAt = &deleted.Time
	}
	return &mt, nil
}

// ListByOwner returns the owner's live catalog entries in creation order.
func (r *MachineTypeRepo) ListByOwner(ctx context.Context, ownerID int64) ([]*MachineType, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+machineTypeCols+" FROM machine_types WHERE owner_id = ? AND deleted_at IS NULL ORDER BY id",
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MachineType
	for rows.Next() {
		var (
			mt      MachineType
			deleted sql.NullTime
		)
		if err := rows.Scan(&mt.ID, &mt.OwnerID, &mt.MachineCode, &mt.Name, &deleted, &mt.CreatedAt); err != nil {
			return nil, err
		}
		if deleted.Valid {
			mt.DeletedAt = &deleted.Time
		}
		out = append(out, &mt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts a catalog entry and returns it fully populated.
func (r *MachineTypeRepo) Create(ctx context.Context, ownerID int64, code int, name string) (*MachineType, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO machine_types (owner_id, machine_code, name) VALUES (?,?,?)",
		ownerID, code, name)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return scanMachineType(r.DB.QueryRowContext(ctx,
		"SELECT "+machineTypeCols+" FROM machine_types WHERE id = ? LIMIT 1", id))
}

// Update rewrites code and name of an entry owned by ownerID. Rows owned by
// another tenant look exactly like missing rows.
func (r *MachineTypeRepo) Update(ctx context.Context, id, ownerID int64, code int, name string) (*MachineType, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE machine_types SET machine_code = ?, name = ? WHERE id = ? AND owner_id = ? AND deleted_at IS NULL",
		code, name, id, ownerID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish "no such row" from "values unchanged".
		var probe int64
		err := r.DB.QueryRowContext(ctx,
			"SELECT id FROM machine_types WHERE id = ? AND owner_id = ? AND deleted_at IS NULL LIMIT 1",
			id, ownerID).Scan(&probe)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
	}
	return scanMachineType(r.DB.QueryRowContext(ctx,
		"SELECT "+machineTypeCols+" FROM machine_types WHERE id = ? LIMIT 1", id))
}

// SoftDelete marks an owned entry as deleted.
func (r *MachineTypeRepo) SoftDelete(ctx context.Context, id, ownerID int64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE machine_types SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND owner_id = ? AND deleted_at IS NULL",
		id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeDeletedBefore physically removes entries soft-deleted before cutoff.
func (r *MachineTypeRepo) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM machine_types WHERE deleted_at IS NOT NULL AND deleted_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Control types for machine usage tracking.
const (
	ControlHourmeter = "Hourmeter"
	ControlOdometer  = "Odometer"
)

// DefaultFuelType is applied when a machine payload omits the fuel type.
const DefaultFuelType = "DIESEL"

// Engine is a motor mounted in a machine. The engine set of a machine is
// replaced wholesale on update: existing rows are soft-deleted and the
// supplied set reinserted.
type Engine struct {
	ID           int64  `json:"id,omitempty"`
	MachineID    int64  `json:"machine_id,omitempty"`
	Brand        string `json:"brand"`
	SerialNumber string `json:"serial_number"`
	Type         string `json:"type"`
	Power        string `json:"power"`
	Location     string `json:"location"`
	Description  string `json:"description"`
}

// MachineFile is a document attached to a machine: a display name plus the
// public URL of the stored blob. Replacing the set on update only rewrites
// these reference rows; the blobs themselves stay in the bucket.
type MachineFile struct {
	ID        int64     `json:"id,omitempty"`
	MachineID int64     `json:"machine_id,omitempty"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Machine is an asset record scoped to its owning tenant admin, with owned
// engine and file sub-collections.
type Machine struct {
	ID                  int64
	OwnerID             int64
	MachineTypeID       *int64
	Name                string
	Brand               string
	Model               string
	Year                string
	SerialNumber        string
	FuelType            string
	ControlType         string
	MaintenanceInterval string
	Observations        string
	CreateCostCenter    bool
	IsActive            bool
	DeletedAt           *time.Time
	CreatedAt           time.Time

	MachineTypeName string // joined from machine_types, list only
	Engines         []Engine
	Files           []MachineFile
}

type MachineRepo struct{ DB *sql.DB }

func NewMachineRepo(db *sql.DB) *MachineRepo { return &MachineRepo{DB: db} }

const machineCols = "m.id, m.owner_id, m.machine_type_id, m.name, m.brand, m.model, m.year, m.serial_number, m.fuel_type, m.control_type, m.maintenance_interval, m.observations, m.create_cost_center, m.is_active, m.deleted_at, m.created_at"

func scanMachine(scan func(dest ...any) error, withTypeName bool) (*Machine, error) {
	var (
		m        Machine
		typeID   sql.NullInt64
		obs      sql.NullString
		deleted  sql.NullTime
		typeName sql.NullString
	)
	dest := []any{&m.ID, &m.OwnerID, &typeID, &m.Name, &m.Brand, &m.Model, &m.Year,
		&m.SerialNumber, &m.FuelType, &m.ControlType, &m.MaintenanceInterval, &obs,
		&m.CreateCostCenter, &m.IsActive, &deleted, &m.CreatedAt}
	if withTypeName {
		dest = append(dest, &typeName)
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}
	if typeID.Valid {
		m.MachineTypeID = &typeID.Int64
	}
	m.Observations = obs.String
	if deleted.Valid {
		m.DeletedAt = &deleted.Time
	}
	m.MachineTypeName = typeName.String
	return &m, nil
}

// ListByOwner returns the owner's live machines, newest first, each with its
// type name and live engine and file sets. Engines and files for the whole
// page are fetched with two IN queries instead of one pair per machine.
func (r *MachineRepo) ListByOwner(ctx context.Context, ownerID int64) ([]*Machine, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+machineCols+", mt.name FROM machines m LEFT JOIN machine_types mt ON mt.id = m.machine_type_id WHERE m.owner_id = ? AND m.deleted_at IS NULL ORDER BY m.created_at DESC",
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []*Machine
		ids   []any
		byID  = map[int64]*Machine{}
		marks []string
	)
	for rows.Next() {
		m, err := scanMachine(rows.Scan, true)
		if err != nil {
			return nil, err
		}
		m.Engines = []Engine{}
		m.Files = []MachineFile{}
		out = append(out, m)
		byID[m.ID] = m
		ids = append(ids, m.ID)
		marks = append(marks, "?")
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	in := strings.Join(marks, ",")

	eng, err := r.DB.QueryContext(ctx,
		"SELECT id, machine_id, brand, serial_number, type, power, location, description FROM machine_engines WHERE machine_id IN ("+in+") AND deleted_at IS NULL ORDER BY id",
		ids...)
	if err != nil {
		return nil, err
	}
	defer eng.Close()
	for eng.Next() {
		var e Engine
		var desc sql.NullString
		if err := eng.Scan(&e.ID, &e.MachineID, &e.Brand, &e.SerialNumber, &e.Type, &e.Power, &e.Location, &desc); err != nil {
			return nil, err
		}
		e.Description = desc.String
		if m := byID[e.MachineID]; m != nil {
			m.Engines = append(m.Engines, e)
		}
	}
	if err := eng.Err(); err != nil {
		return nil, err
	}

	fls, err := r.DB.QueryContext(ctx,
		"SELECT id, machine_id, name, url, type, created_at FROM machine_files WHERE machine_id IN ("+in+") ORDER BY id",
		ids...)
	if err != nil {
		return nil, err
	}
	defer fls.Close()
	for fls.Next() {
		var f MachineFile
		if err := fls.Scan(&f.ID, &f.MachineID, &f.Name, &f.URL, &f.Type, &f.CreatedAt); err != nil {
			return nil, err
		}
		if m := byID[f.MachineID]; m != nil {
			m.Files = append(m.Files, f)
		}
	}
	return out, fls.Err()
}

// GetByID fetches one owned machine regardless of deletion state, so callers
// can observe DeletedAt on soft-deleted rows.
func (r *MachineRepo) GetByID(ctx context.Context, id, ownerID int64) (*Machine, error) {
	m, err := scanMachine(r.DB.QueryRowContext(ctx,
		"SELECT "+machineCols+" FROM machines m WHERE m.id = ? AND m.owner_id = ? LIMIT 1",
		id, ownerID).Scan, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// Create inserts a machine together with its engines and files in a single
// transaction; a failure partway through leaves no orphaned rows.
func (r *MachineRepo) Create(ctx context.Context, m *Machine) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO machines (owner_id, machine_type_id, name, brand, model, year, serial_number, fuel_type, control_type, maintenance_interval, observations, create_cost_center, is_active) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)",
		m.OwnerID, m.MachineTypeID, m.Name, m.Brand, m.Model, m.Year, m.SerialNumber,
		m.FuelType, m.ControlType, m.MaintenanceInterval, m.Observations,
		m.CreateCostCenter, m.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id

	if err := insertEngines(ctx, tx, id, m.Engines); err != nil {
		return err
	}
	if err := insertFiles(ctx, tx, id, m.Files); err != nil {
		return err
	}
	return tx.Commit()
}

// Update rewrites the machine row and replaces both sub-collections with the
// supplied sets, all in one transaction. Engines are soft-deleted and
// reinserted; file reference rows are hard-deleted and reinserted. Supplying
// an empty set therefore clears the collection.
func (r *MachineRepo) Update(ctx context.Context, m *Machine) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var probe int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM machines WHERE id = ? AND owner_id = ? AND deleted_at IS NULL LIMIT 1",
		m.ID, m.OwnerID).Scan(&probe)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE machines SET machine_type_id = ?, name = ?, brand = ?, model = ?, year = ?, serial_number = ?, fuel_type = ?, control_type = ?, maintenance_interval = ?, observations = ?, create_cost_center = ?, is_active = ? WHERE id = ? AND owner_id = ?",
		m.MachineTypeID, m.Name, m.Brand, m.Model, m.Year, m.SerialNumber,
		m.FuelType, m.ControlType, m.MaintenanceInterval, m.Observations,
		m.CreateCostCenter, m.IsActive, m.ID, m.OwnerID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE machine_engines SET deleted_at = CURRENT_TIMESTAMP WHERE machine_id = ? AND deleted_at IS NULL",
		m.ID); err != nil {
		return err
	}
	if err := insertEngines(ctx, tx, m.ID, m.Engines); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM machine_files WHERE machine_id = ?", m.ID); err != nil {
		return err
	}
	if err := insertFiles(ctx, tx, m.ID, m.Files); err != nil {
		return err
	}
	return tx.Commit()
}

func insertEngines(ctx context.Context, tx *sql.Tx, machineID int64, engines []Engine) error {
	for i := range engines {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO machine_engines (machine_id, brand, serial_number, type, power, location, description) VALUES (?,?,?,?,?,?,?)",
			machineID, engines[i].Brand, engines[i].SerialNumber, engines[i].Type,
			engines[i].Power, engines[i].Location, engines[i].Description)
		if err != nil {
			return err
		}
		id, _ := res.LastInsertId()
		engines[i].ID = id
		engines[i].MachineID = machineID
	}
	return nil
}

func insertFiles(ctx context.Context, tx *sql.Tx, machineID int64, files []MachineFile) error {
	for i := range files {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO machine_files (machine_id, name, url, type) VALUES (?,?,?,?)",
			machineID, files[i].Name, files[i].URL, files[i].Type)
		if err != nil {
			return err
		}
		id, _ := res.LastInsertId()
		files[i].ID = id
		files[i].MachineID = machineID
	}
	return nil
}

// SoftDelete marks an owned machine as deleted.
func (r *MachineRepo) SoftDelete(ctx context.Context, id, ownerID int64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE machines SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND owner_id = ? AND deleted_at IS NULL",
		id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeDeletedBefore physically removes machines soft-deleted before cutoff,
// along with their engine and file rows, plus engine rows orphaned by the
// full-replace update strategy.
func (r *MachineRepo) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE e FROM machine_engines e JOIN machines m ON m.id = e.machine_id WHERE m.deleted_at IS NOT NULL AND m.deleted_at < ?",
		cutoff); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE f FROM machine_files f JOIN machines m ON m.id = f.machine_id WHERE m.deleted_at IS NOT NULL AND m.deleted_at < ?",
		cutoff); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM machine_engines WHERE deleted_at IS NOT NULL AND deleted_at < ?",
		cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		"DELETE FROM machines WHERE deleted_at IS NOT NULL AND deleted_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

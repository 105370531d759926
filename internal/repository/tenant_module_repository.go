package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Module names gated per tenant admin. The set is fixed; anything else in a
// toggle request is invalid input.
const (
	ModuleUsers      = "users"
	ModuleRecordings = "recordings"
	ModuleMovements  = "movements"
)

// ValidModule reports whether name is one of the known feature modules.
func ValidModule(name string) bool {
	return name == ModuleUsers || name == ModuleRecordings || name == ModuleMovements
}

// moduleColumn maps a module name onto its column. The whitelist above is the
// only thing ever interpolated into SQL here.
func moduleColumn(name string) (string, bool) {
	switch name {
	case ModuleUsers:
		return "module_users", true
	case ModuleRecordings:
		return "module_recordings", true
	case ModuleMovements:
		return "module_movements", true
	}
	return "", false
}

// TenantModules is one tenant admin's feature-module configuration, keyed by
// the stringified user id.
type TenantModules struct {
	Username string          `json:"username"`
	Modules  map[string]bool `json:"modules"`
}

type TenantModuleRepo struct{ DB *sql.DB }

func NewTenantModuleRepo(db *sql.DB) *TenantModuleRepo { return &TenantModuleRepo{DB: db} }

// DefaultModules is the configuration a fresh tenant admin starts with.
func DefaultModules() map[string]bool {
	return map[string]bool{ModuleUsers: true, ModuleRecordings: false, ModuleMovements: false}
}

const tenantModuleCols = "username, module_users, module_recordings, module_movements"

func scanTenantModules(row interface {
	Scan(dest ...any) error
}) (*TenantModules, error) {
	var (
		t                          TenantModules
		users, recordings, movemts bool
	)
	if err := row.Scan(&t.Username, &users, &recordings, &movemts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Modules = map[string]bool{ModuleUsers: users, ModuleRecordings: recordings, ModuleMovements: movemts}
	return &t, nil
}

// List returns every tenant module configuration.
func (r *TenantModuleRepo) List(ctx context.Context) ([]*TenantModules, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+tenantModuleCols+" FROM tenant_modules ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TenantModules
	for rows.Next() {
		t, err := scanTenantModules(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one tenant's configuration by username.
func (r *TenantModuleRepo) Get(ctx context.Context, username string) (*TenantModules, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+tenantModuleCols+" FROM tenant_modules WHERE username = ? LIMIT 1", username)
	return scanTenantModules(row)
}

// Ensure creates the configuration row with defaults when it does not exist
// yet. Toggling a module on a tenant that only lives in the users table goes
// through here first.
func (r *TenantModuleRepo) Ensure(ctx context.Context, username string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO tenant_modules (username) VALUES (?)", username)
	return err
}

// Toggle flips one module flag and returns the updated configuration.
func (r *TenantModuleRepo) Toggle(ctx context.Context, username, module string, enabled bool) (*TenantModules, error) {
	col, ok := moduleColumn(module)
	if !ok {
		return nil, fmt.Errorf("unknown module %q", module)
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tenant_modules SET "+col+" = ? WHERE username = ?", enabled, username)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// The flag may already hold the requested value; only report not
		// found when the row itself is missing.
		if _, err := r.Get(ctx, username); err != nil {
			return nil, err
		}
	}
	return r.Get(ctx, username)
}

// Delete removes a tenant's configuration row. ErrNotFound when absent.
func (r *TenantModuleRepo) Delete(ctx context.Context, username string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM tenant_modules WHERE username = ?", username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

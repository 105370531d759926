package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupMachineTypeMock(t *testing.T) (*MachineTypeRepo, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewMachineTypeRepo(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

func machineTypeRow(id, ownerID int64, code int, name string) *sqlmock.Rows {
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{"id", "owner_id", "machine_code", "name", "deleted_at", "created_at"}).
		AddRow(id, ownerID, code, name, nil, created)
}

func TestMachineTypeCreate(t *testing.T) {
	repo, mock, cleanup := setupMachineTypeMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO machine_types (owner_id, machine_code, name) VALUES (?,?,?)")).
		WithArgs(int64(55), 101, "EXCAVATOR").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+machineTypeCols+" FROM machine_types WHERE id = ? LIMIT 1")).
		WithArgs(int64(9)).
		WillReturnRows(machineTypeRow(9, 55, 101, "EXCAVATOR"))

	mt, err := repo.Create(context.Background(), 55, 101, "EXCAVATOR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mt.ID != 9 || mt.MachineCode != 101 {
		t.Errorf("got %+v", mt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// Updating another tenant's entry must look exactly like updating a missing
// one.
func TestMachineTypeUpdateCrossTenant(t *testing.T) {
	repo, mock, cleanup := setupMachineTypeMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE machine_types SET machine_code = ?, name = ? WHERE id = ? AND owner_id = ? AND deleted_at IS NULL")).
		WithArgs(101, "EXCAVATOR", int64(9), int64(777)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id FROM machine_types WHERE id").
		WithArgs(int64(9), int64(777)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Update(context.Background(), 9, 777, 101, "EXCAVATOR")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// Zero affected rows with identical values is not an error; the probe finds
// the row and the current record is returned.
func TestMachineTypeUpdateUnchangedValues(t *testing.T) {
	repo, mock, cleanup := setupMachineTypeMock(t)
	defer cleanup()

	mock.ExpectExec("UPDATE machine_types SET machine_code").
		WithArgs(101, "EXCAVATOR", int64(9), int64(55)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id FROM machine_types WHERE id").
		WithArgs(int64(9), int64(55)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectQuery("SELECT .+ FROM machine_types WHERE id").
		WithArgs(int64(9)).
		WillReturnRows(machineTypeRow(9, 55, 101, "EXCAVATOR"))

	mt, err := repo.Update(context.Background(), 9, 55, 101, "EXCAVATOR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mt.Name != "EXCAVATOR" {
		t.Errorf("got %+v", mt)
	}
}

func TestMachineTypeSoftDelete(t *testing.T) {
	repo, mock, cleanup := setupMachineTypeMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE machine_types SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND owner_id = ? AND deleted_at IS NULL")).
		WithArgs(int64(9), int64(55)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SoftDelete(context.Background(), 9, 55); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMachineTypeSoftDeleteCrossTenant(t *testing.T) {
	repo, mock, cleanup := setupMachineTypeMock(t)
	defer cleanup()

	mock.ExpectExec("UPDATE machine_types SET deleted_at").
		WithArgs(int64(9), int64(777)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SoftDelete(context.Background(), 9, 777); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMachineTypeListByOwner(t *testing.T) {
	repo, mock, cleanup := setupMachineTypeMock(t)
	defer cleanup()

	rows := machineTypeRow(9, 55, 101, "EXCAVATOR")
	rows.AddRow(10, 55, 102, "LOADER", nil, time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+machineTypeCols+" FROM machine_types WHERE owner_id = ? AND deleted_at IS NULL ORDER BY id")).
		WithArgs(int64(55)).
		WillReturnRows(rows)

	types, err := repo.ListByOwner(context.Background(), 55)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(types) != 2 || types[1].Name != "LOADER" {
		t.Errorf("got %+v", types)
	}
}

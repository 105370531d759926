package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"

	"github.com/maquiflow/fleet-portal/internal/auth"
)

func setupIdentityMock(t *testing.T) (*IdentityRepo, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewIdentityRepo(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

var identityColNames = []string{"user_id", "name", "document_id", "email", "password_hash", "role_id", "parent_id", "deleted_at", "created_at", "updated_at"}

func identityRow(userID int64, email string, role auth.Role, parentID any) *sqlmock.Rows {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(identityColNames).
		AddRow(userID, "Some Name", "900123", email, "$2a$04$fakefakefakefakefakefake", role, parentID, nil, now, now)
}

func TestGetByIdentifierNumeric(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+identityCols+" FROM users WHERE user_id = ? AND deleted_at IS NULL LIMIT 1")).
		WithArgs(int64(42)).
		WillReturnRows(identityRow(42, "a@b.co", auth.RoleTenantAdmin, nil))

	id, err := repo.GetByIdentifier(context.Background(), " 42 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID != 42 || id.RoleID != auth.RoleTenantAdmin {
		t.Errorf("got %+v", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetByIdentifierEmailLowercased(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+identityCols+" FROM users WHERE email = ? AND deleted_at IS NULL LIMIT 1")).
		WithArgs("tenant@example.com").
		WillReturnRows(identityRow(7, "tenant@example.com", auth.RoleTenantAdmin, nil))

	id, err := repo.GetByIdentifier(context.Background(), "Tenant@Example.COM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID != 7 {
		t.Errorf("got user %d", id.UserID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .+ FROM users WHERE user_id").
		WithArgs(int64(999)).
		WillReturnRows(sqlmock.NewRows(identityColNames))

	_, err := repo.GetByID(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateTenantAdminInsertsModuleRow(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	parent := int64(1)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM users WHERE email = ? AND deleted_at IS NULL)")).
		WithArgs("new@tenant.co").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (name, document_id, email, password_hash, role_id, parent_id) VALUES (?,?,?,?,?,?)")).
		WithArgs("New Tenant", "900", "new@tenant.co", sqlmock.AnyArg(), auth.RoleTenantAdmin, parent).
		WillReturnResult(sqlmock.NewResult(55, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenant_modules (username) VALUES (?)")).
		WithArgs("55").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + identityCols + " FROM users WHERE user_id = ? LIMIT 1")).
		WithArgs(int64(55)).
		WillReturnRows(identityRow(55, "new@tenant.co", auth.RoleTenantAdmin, parent))
	mock.ExpectCommit()

	created, err := repo.Create(context.Background(), CreateIdentityInput{
		Name:       "New Tenant",
		DocumentID: "900",
		Email:      "New@Tenant.co",
		Password:   "pw",
		RoleID:     auth.RoleTenantAdmin,
		ParentID:   &parent,
	}, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.UserID != 55 {
		t.Errorf("created user id = %d", created.UserID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateSubUserSkipsModuleRow(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	parent := int64(55)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("sub@tenant.co").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO users").
		WithArgs("Sub", "", "sub@tenant.co", sqlmock.AnyArg(), auth.RoleSubUser, parent).
		WillReturnResult(sqlmock.NewResult(56, 1))
	mock.ExpectQuery("SELECT .+ FROM users WHERE user_id").
		WithArgs(int64(56)).
		WillReturnRows(identityRow(56, "sub@tenant.co", auth.RoleSubUser, parent))
	mock.ExpectCommit()

	_, err := repo.Create(context.Background(), CreateIdentityInput{
		Name:     "Sub",
		Email:    "sub@tenant.co",
		Password: "pw",
		RoleID:   auth.RoleSubUser,
		ParentID: &parent,
	}, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("dup@tenant.co").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), CreateIdentityInput{
		Name: "Dup", Email: "dup@tenant.co", Password: "pw", RoleID: auth.RoleSubUser,
	}, bcrypt.MinCost)
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("err = %v, want ErrEmailExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateWrongParentIsNotFound(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM users WHERE user_id = ? AND parent_id = ? AND deleted_at IS NULL LIMIT 1")).
		WithArgs(int64(56), int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, err := repo.Update(context.Background(), 56, 999, UpdateIdentityFields{Name: "X"}, bcrypt.MinCost)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateAppliesOnlyNonEmptyFields(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT user_id FROM users WHERE user_id").
		WithArgs(int64(56), int64(55)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(56))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET name = ?, email = ? WHERE user_id = ?")).
		WithArgs("Renamed", "renamed@tenant.co", int64(56)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM users WHERE user_id").
		WithArgs(int64(56)).
		WillReturnRows(identityRow(56, "renamed@tenant.co", auth.RoleSubUser, int64(55)))

	updated, err := repo.Update(context.Background(), 56, 55, UpdateIdentityFields{
		Name:  "Renamed",
		Email: "Renamed@Tenant.co",
	}, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Email != "renamed@tenant.co" {
		t.Errorf("email = %q", updated.Email)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSoftDeleteScopedByParent(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE user_id = ? AND parent_id = ? AND deleted_at IS NULL")).
		WithArgs(int64(56), int64(999)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SoftDelete(context.Background(), 56, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListChildren(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	rows := identityRow(56, "a@t.co", auth.RoleSubUser, int64(55))
	now := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	rows.AddRow(57, "B", "901", "b@t.co", "hash", auth.RoleSubUser, int64(55), nil, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+identityCols+" FROM users WHERE parent_id = ? AND deleted_at IS NULL ORDER BY user_id")).
		WithArgs(int64(55)).
		WillReturnRows(rows)

	children, err := repo.ListChildren(context.Background(), 55)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("len = %d", len(children))
	}
	if children[1].ParentID == nil || *children[1].ParentID != 55 {
		t.Errorf("parent not scanned: %+v", children[1])
	}
}

func TestPurgeDeletedBefore(t *testing.T) {
	repo, mock, cleanup := setupIdentityMock(t)
	defer cleanup()

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE deleted_at IS NOT NULL AND deleted_at < ?")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.PurgeDeletedBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("purged = %d, want 3", n)
	}
}

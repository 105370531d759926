package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/maquiflow/fleet-portal/internal/auth"
	"github.com/maquiflow/fleet-portal/internal/config"
	"github.com/maquiflow/fleet-portal/internal/repository"
)

func newUserTest(t *testing.T) (*UserHandler, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	h := NewUserHandler(config.Config{BcryptCost: bcrypt.MinCost}, repository.NewIdentityRepo(db))
	return h, mock, func() { db.Close() }
}

func ctxWithSession(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, role auth.Role, userID int64) echo.Context {
	c := e.NewContext(req, rec)
	if role != 0 {
		c.Set("session", &auth.Session{
			UserID:   userID,
			RoleID:   role,
			Role:     role.SessionRole(),
			IssuedAt: time.Now().Unix(),
		})
	}
	return c
}

func jsonReq(method, path, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func TestUserListByRole(t *testing.T) {
	h, mock, cleanup := newUserTest(t)
	defer cleanup()
	e := echo.New()

	// Root admins get an empty list.
	req, rec := jsonReq(http.MethodGet, "/admin/users", "")
	require.NoError(t, h.List(ctxWithSession(e, req, rec, auth.RoleRootAdmin, 1)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[]}`, rec.Body.String())

	// Tenant admins get their children.
	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM users WHERE parent_id").
		WithArgs(int64(55)).
		WillReturnRows(sqlmock.NewRows(identityColNames).
			AddRow(56, "Sub", "901", "sub@t.co", "hash", auth.RoleSubUser, 55, nil, now, now))
	req, rec = jsonReq(http.MethodGet, "/admin/users", "")
	require.NoError(t, h.List(ctxWithSession(e, req, rec, auth.RoleTenantAdmin, 55)))
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Users []userPart `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 1)
	assert.Equal(t, int64(56), resp.Users[0].UserID)

	// Sub-users get 401.
	req, rec = jsonReq(http.MethodGet, "/admin/users", "")
	require.NoError(t, h.List(ctxWithSession(e, req, rec, auth.RoleSubUser, 56)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// No session at all is 401 too.
	req, rec = jsonReq(http.MethodGet, "/admin/users", "")
	require.NoError(t, h.List(ctxWithSession(e, req, rec, 0, 0)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserCreateRoleMismatchForbidden(t *testing.T) {
	h, _, cleanup := newUserTest(t)
	defer cleanup()
	e := echo.New()

	// A tenant admin may only create sub-users; asking for role 2 is 403.
	req, rec := jsonReq(http.MethodPost, "/admin/users",
		`{"name":"X","email":"x@t.co","password":"pw","roleId":2}`)
	require.NoError(t, h.Create(ctxWithSession(e, req, rec, auth.RoleTenantAdmin, 55)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A root admin may only create tenant admins.
	req, rec = jsonReq(http.MethodPost, "/admin/users",
		`{"name":"X","email":"x@t.co","password":"pw","roleId":3}`)
	require.NoError(t, h.Create(ctxWithSession(e, req, rec, auth.RoleRootAdmin, 1)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Sub-users cannot create anyone.
	req, rec = jsonReq(http.MethodPost, "/admin/users",
		`{"name":"X","email":"x@t.co","password":"pw"}`)
	require.NoError(t, h.Create(ctxWithSession(e, req, rec, auth.RoleSubUser, 56)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserCreateSetsParentAndRole(t *testing.T) {
	h, mock, cleanup := newUserTest(t)
	defer cleanup()
	e := echo.New()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("sub@t.co").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO users").
		WithArgs("Sub", "", "sub@t.co", sqlmock.AnyArg(), auth.RoleSubUser, int64(55)).
		WillReturnResult(sqlmock.NewResult(56, 1))
	mock.ExpectQuery("SELECT .+ FROM users WHERE user_id").
		WithArgs(int64(56)).
		WillReturnRows(sqlmock.NewRows(identityColNames).
			AddRow(56, "Sub", "", "sub@t.co", "hash", auth.RoleSubUser, 55, nil, now, now))
	mock.ExpectCommit()

	// The payload's roleId is omitted; the creator's role decides.
	req, rec := jsonReq(http.MethodPost, "/admin/users",
		`{"name":"Sub","email":"Sub@T.co","password":"pw"}`)
	require.NoError(t, h.Create(ctxWithSession(e, req, rec, auth.RoleTenantAdmin, 55)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		User userPart `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, auth.RoleSubUser, resp.User.RoleID)
	require.NotNil(t, resp.User.ParentID)
	assert.Equal(t, int64(55), *resp.User.ParentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateDuplicateEmailConflict(t *testing.T) {
	h, mock, cleanup := newUserTest(t)
	defer cleanup()
	e := echo.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("dup@t.co").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	req, rec := jsonReq(http.MethodPost, "/admin/users",
		`{"name":"Dup","email":"dup@t.co","password":"pw"}`)
	require.NoError(t, h.Create(ctxWithSession(e, req, rec, auth.RoleTenantAdmin, 55)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUserUpdateRequiresTenantAdmin(t *testing.T) {
	h, _, cleanup := newUserTest(t)
	defer cleanup()
	e := echo.New()

	for _, role := range []auth.Role{auth.RoleRootAdmin, auth.RoleSubUser} {
		req, rec := jsonReq(http.MethodPut, "/admin/users", `{"userId":56,"name":"X"}`)
		require.NoError(t, h.Update(ctxWithSession(e, req, rec, role, 1)))
		assert.Equal(t, http.StatusForbidden, rec.Code, "role %d", role)
	}
}

// A tenant admin targeting a user that is not their child sees 404, never a
// hint that the account exists.
func TestUserUpdateCrossTenantNotFound(t *testing.T) {
	h, mock, cleanup := newUserTest(t)
	defer cleanup()
	e := echo.New()

	mock.ExpectQuery("SELECT user_id FROM users WHERE user_id").
		WithArgs(int64(200), int64(55)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	req, rec := jsonReq(http.MethodPut, "/admin/users", `{"userId":200,"name":"X"}`)
	require.NoError(t, h.Update(ctxWithSession(e, req, rec, auth.RoleTenantAdmin, 55)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserDeleteCrossTenantNotFound(t *testing.T) {
	h, mock, cleanup := newUserTest(t)
	defer cleanup()
	e := echo.New()

	mock.ExpectExec("UPDATE users SET deleted_at").
		WithArgs(int64(200), int64(55)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req, rec := jsonReq(http.MethodDelete, "/admin/users", `{"userId":200}`)
	require.NoError(t, h.Delete(ctxWithSession(e, req, rec, auth.RoleTenantAdmin, 55)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserDeleteForbiddenRoles(t *testing.T) {
	h, _, cleanup := newUserTest(t)
	defer cleanup()
	e := echo.New()

	for _, role := range []auth.Role{auth.RoleRootAdmin, auth.RoleSubUser} {
		req, rec := jsonReq(http.MethodDelete, "/admin/users", `{"userId":56}`)
		require.NoError(t, h.Delete(ctxWithSession(e, req, rec, role, 1)))
		assert.Equal(t, http.StatusForbidden, rec.Code, "role %d", role)
	}
}

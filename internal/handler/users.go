package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maquiflow/fleet-portal/internal/auth"
	"github.com/maquiflow/fleet-portal/internal/config"
	"github.com/maquiflow/fleet-portal/internal/queue"
	"github.com/maquiflow/fleet-portal/internal/repository"
)

// UserHandler manages the accounts a caller is allowed to mint and maintain:
// tenant admins under a root admin, sub-users under a tenant admin.
type UserHandler struct {
	Cfg        config.Config
	Identities *repository.IdentityRepo
}

func NewUserHandler(cfg config.Config, ids *repository.IdentityRepo) *UserHandler {
	return &UserHandler{Cfg: cfg, Identities: ids}
}

// userPart is the identity shape returned to clients. No password hash.
type userPart struct {
	UserID     int64     `json:"userId"`
	Name       string    `json:"name"`
	DocumentID string    `json:"documentId"`
	Email      string    `json:"email"`
	RoleID     auth.Role `json:"roleId"`
	ParentID   *int64    `json:"parentId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toUserPart(id *repository.Identity) userPart {
	return userPart{
		UserID:     id.UserID,
		Name:       id.Name,
		DocumentID: id.DocumentID,
		Email:      id.Email,
		RoleID:     id.RoleID,
		ParentID:   id.ParentID,
		CreatedAt:  id.CreatedAt,
	}
}

// List returns the caller's child accounts. Root admins get an empty list:
// their children are tenants and live under /admin/tenants instead.
func (h *UserHandler) List(c echo.Context) error {
	s := currentSession(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	switch s.RoleID {
	case auth.RoleRootAdmin:
		return c.JSON(http.StatusOK, echo.Map{"users": []userPart{}})
	case auth.RoleTenantAdmin:
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		children, err := h.Identities.ListChildren(ctx, s.UserID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
		}
		users := make([]userPart, 0, len(children))
		for _, id := range children {
			users = append(users, toUserPart(id))
		}
		return c.JSON(http.StatusOK, echo.Map{"users": users})
	default:
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
}

type createUserReq struct {
	Name       string    `json:"name"`
	DocumentID string    `json:"documentId"`
	Email      string    `json:"email"`
	Password   string    `json:"password"`
	RoleID     auth.Role `json:"roleId"`
}

// Create mints a child account. The creator's role fixes the only role it may
// create (root admin → tenant admin, tenant admin → sub-user); asking for any
// other role is 403. The new account's parent is always the caller.
func (h *UserHandler) Create(c echo.Context) error {
	s := currentSession(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	target, ok := auth.CreatableRole(s.RoleID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.RoleID != 0 && req.RoleID != target {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name/email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	parent := s.UserID
	created, err := h.Identities.Create(ctx, repository.CreateIdentityInput{
		Name:       req.Name,
		DocumentID: strings.TrimSpace(req.DocumentID),
		Email:      req.Email,
		Password:   req.Password,
		RoleID:     target,
		ParentID:   &parent,
	}, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	audit(s, queue.ActionIdentityCreate, created.Email, "")
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "user": toUserPart(created)})
}

type updateUserReq struct {
	UserID     int64  `json:"userId"`
	Name       string `json:"name"`
	DocumentID string `json:"documentId"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// Update edits one of the caller's children. Only tenant admins may update;
// the parent scope is part of the store query, so a foreign user id comes
// back as 404 rather than confirming the account exists.
func (h *UserHandler) Update(c echo.Context) error {
	s := currentSession(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if auth.Authorize(s.RoleID, auth.OpUpdateChild) != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.UserID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	updated, err := h.Identities.Update(ctx, req.UserID, s.UserID, repository.UpdateIdentityFields{
		Name:       strings.TrimSpace(req.Name),
		DocumentID: strings.TrimSpace(req.DocumentID),
		Email:      strings.TrimSpace(req.Email),
		Password:   req.Password,
	}, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
	}

	audit(s, queue.ActionIdentityUpdate, updated.Email, "")
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "user": toUserPart(updated)})
}

type deleteUserReq struct {
	UserID int64 `json:"userId"`
}

// Delete soft-deletes one of the caller's children. Same scoping rule as
// Update.
func (h *UserHandler) Delete(c echo.Context) error {
	s := currentSession(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if auth.Authorize(s.RoleID, auth.OpDeleteChild) != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	var req deleteUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.UserID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Identities.SoftDelete(ctx, req.UserID, s.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete user failed"})
	}

	audit(s, queue.ActionIdentityDelete, "", "")
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

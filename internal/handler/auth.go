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

// AuthHandler bundles dependencies for login and logout.
type AuthHandler struct {
	Cfg        config.Config
	Identities *repository.IdentityRepo
}

func NewAuthHandler(cfg config.Config, ids *repository.IdentityRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Identities: ids}
}

type loginReq struct {
	Identifier string `json:"identifier"` // numeric user id or email
	Password   string `json:"password"`
}

type loginResp struct {
	OK           bool   `json:"ok"`
	Role         string `json:"role"`
	RedirectPath string `json:"redirectPath"`
}

// Login verifies credentials and issues the session cookie. Bad identifier
// and bad password answer identically so the endpoint cannot be used to probe
// which accounts exist.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Identities.GetByIdentifier(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	if !auth.VerifyPassword(id.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	s := &auth.Session{
		UserID:      id.UserID,
		RoleID:      id.RoleID,
		Username:    id.Email,
		Role:        id.RoleID.SessionRole(),
		DisplayName: id.Name,
		ParentID:    id.ParentID,
		Email:       id.Email,
		DocumentID:  id.DocumentID,
		IssuedAt:    time.Now().Unix(),
	}
	if err := auth.SetSessionCookie(c, s); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	redirect := "/cliente/home"
	if id.RoleID == auth.RoleRootAdmin || id.RoleID == auth.RoleTenantAdmin {
		redirect = "/admin/dashboard"
	}
	audit(s, queue.ActionLogin, "", "")
	return c.JSON(http.StatusOK, loginResp{OK: true, Role: s.Role, RedirectPath: redirect})
}

// Logout clears the session cookie. Always succeeds, even without a session.
func (h *AuthHandler) Logout(c echo.Context) error {
	auth.ClearSessionCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Me echoes the caller's session payload, mainly for the frontend to restore
// state after a reload.
func (h *AuthHandler) Me(c echo.Context) error {
	s := currentSession(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, s)
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maquiflow/fleet-portal/internal/auth"
	"github.com/maquiflow/fleet-portal/internal/queue"
	"github.com/maquiflow/fleet-portal/internal/repository"
)

// TenantHandler manages tenant admin accounts and their feature modules.
type TenantHandler struct {
	Identities *repository.IdentityRepo
	Modules    *repository.TenantModuleRepo
}

func NewTenantHandler(ids *repository.IdentityRepo, mods *repository.TenantModuleRepo) *TenantHandler {
	return &TenantHandler{Identities: ids, Modules: mods}
}

// tenantItem is one row of the tenant listing: the identity (when one exists
// for the key) merged with the module configuration.
type tenantItem struct {
	Username string          `json:"username"`
	Name     string          `json:"name,omitempty"`
	Email    string          `json:"email,omitempty"`
	Modules  map[string]bool `json:"modules"`
}

// List returns tenant rows. Root admins see every tenant; tenant admins see
// only the row matching their own key. This endpoint family answers 401, not
// 403, to disallowed roles.
func (h *TenantHandler) List(c echo.Context) error {
	s := currentSession(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	switch s.RoleID {
	case auth.RoleRootAdmin:
		items, err := h.listAll(ctx)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
		}
		return c.JSON(http.StatusOK, echo.Map{"tenants": items})
	case auth.RoleTenantAdmin:
		item, err := h.listOwn(ctx, s)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
		}
		items := []tenantItem{}
		if item != nil {
			items = append(items, *item)
		}
		return c.JSON(http.StatusOK, echo.Map{"tenants": items})
	default:
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
}

// listAll merges every tenant admin identity with its module configuration,
// falling back to defaults for identities whose module row is missing.
func (h *TenantHandler) listAll(ctx context.Context) ([]tenantItem, error) {
	mods, err := h.Modules.List(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]map[string]bool, len(mods))
	for _, m := range mods {
		byKey[m.Username] = m.Modules
	}

	ids, err := h.Identities.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	items := []tenantItem{}
	seen := make(map[string]bool)
	for _, id := range ids {
		if id.RoleID != auth.RoleTenantAdmin {
			continue
		}
		key := strconv.FormatInt(id.UserID, 10)
		modules, ok := byKey[key]
		if !ok {
			modules = repository.DefaultModules()
		}
		items = append(items, tenantItem{Username: key, Name: id.Name, Email: id.Email, Modules: modules})
		seen[key] = true
	}
	// Module rows without a matching identity (e.g. non-numeric legacy keys)
	// still show up, without identity fields.
	for _, m := range mods {
		if !seen[m.Username] {
			items = append(items, tenantItem{Username: m.Username, Modules: m.Modules})
		}
	}
	return items, nil
}

func (h *TenantHandler) listOwn(ctx context.Context, s *auth.Session) (*tenantItem, error) {
	key := strconv.FormatInt(s.UserID, 10)
	item := tenantItem{Username: key, Name: s.DisplayName, Email: s.Email}
	m, err := h.Modules.Get(ctx, key)
	switch {
	case err == nil:
		item.Modules = m.Modules
	case errors.Is(err, repository.ErrNotFound):
		item.Modules = repository.DefaultModules()
	default:
		return nil, err
	}
	return &item, nil
}

type toggleModuleReq struct {
	Username string `json:"username"`
	Module   string `json:"module"`
	Enabled  bool   `json:"enabled"`
}

// Toggle flips one feature module for a tenant. Root admin only. The module
// row is created with defaults first when the tenant never had one.
func (h *TenantHandler) Toggle(c echo.Context) error {
	s := currentSession(c)
	if s == nil || auth.Authorize(s.RoleID, auth.OpToggleTenantModule) != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req toggleModuleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username is required"})
	}
	if !repository.ValidModule(req.Module) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown module"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Modules.Ensure(ctx, req.Username); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	t, err := h.Modules.Toggle(ctx, req.Username, req.Module, req.Enabled)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}

	audit(s, queue.ActionModuleToggle, req.Username, fmt.Sprintf("%s=%t", req.Module, req.Enabled))
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "tenant": t})
}

type deleteTenantReq struct {
	Username string `json:"username"`
}

// Delete removes a tenant: its module row goes away and, when the key is a
// numeric user id, the identity is soft-deleted with it. 404 only when
// neither existed.
func (h *TenantHandler) Delete(c echo.Context) error {
	s := currentSession(c)
	if s == nil || auth.Authorize(s.RoleID, auth.OpDeleteTenant) != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req deleteTenantReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	removed := false
	switch err := h.Modules.Delete(ctx, req.Username); {
	case err == nil:
		removed = true
	case errors.Is(err, repository.ErrNotFound):
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}

	if uid, err := strconv.ParseInt(req.Username, 10, 64); err == nil {
		switch err := h.Identities.SoftDeleteAny(ctx, uid); {
		case err == nil:
			removed = true
		case errors.Is(err, repository.ErrNotFound):
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
		}
	}

	if !removed {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}
	audit(s, queue.ActionTenantDelete, req.Username, "")
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maquiflow/fleet-portal/internal/cache"
	"github.com/maquiflow/fleet-portal/internal/queue"
	"github.com/maquiflow/fleet-portal/internal/repository"
)

// MachineTypeHandler manages a tenant admin's machine type catalog. Route
// middleware has already established the caller is a tenant admin.
type MachineTypeHandler struct {
	Types *repository.MachineTypeRepo
	Cache *cache.ResponseCache
}

func NewMachineTypeHandler(types *repository.MachineTypeRepo, rc *cache.ResponseCache) *MachineTypeHandler {
	return &MachineTypeHandler{Types: types, Cache: rc}
}

var machineCodeRe = regexp.MustCompile(`^\d+$`)

// validateMachineCode coerces a JSON value (number or string) into a machine
// code. Clients historically sent either form, so both are accepted: the
// value is stringified, trimmed, and must be all digits in 1..32767.
func validateMachineCode(raw any) (int, error) {
	if raw == nil {
		return 0, errors.New("machine code is required")
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64: // how encoding/json hands over numbers
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	if !machineCodeRe.MatchString(s) {
		return 0, errors.New("machine code must be numeric")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 32767 {
		return 0, errors.New("machine code must be between 1 and 32767")
	}
	return n, nil
}

type machineTypeItem struct {
	ID          int64  `json:"id"`
	MachineCode int    `json:"machine_code"`
	Name        string `json:"name"`
	CreatedAt   string `json:"created_at"`
}

func toMachineTypeItem(mt *repository.MachineType) machineTypeItem {
	return machineTypeItem{
		ID:          mt.ID,
		MachineCode: mt.MachineCode,
		Name:        mt.Name,
		CreatedAt:   mt.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// List returns the caller's catalog.
func (h *MachineTypeHandler) List(c echo.Context) error {
	s := currentSession(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	types, err := h.Types.ListByOwner(ctx, s.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	items := make([]machineTypeItem, 0, len(types))
	for _, mt := range types {
		items = append(items, toMachineTypeItem(mt))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

type machineTypeReq struct {
	ID          int64  `json:"id"`
	MachineCode any    `json:"machine_code"` // number or string, see validateMachineCode
	Name        string `json:"name"`
}

// Create adds a catalog entry. Names are stored uppercased.
func (h *MachineTypeHandler) Create(c echo.Context) error {
	s := currentSession(c)

	var req machineTypeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	code, err := validateMachineCode(req.MachineCode)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	name := strings.ToUpper(strings.TrimSpace(req.Name))
	if name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	mt, err := h.Types.Create(ctx, s.UserID, code, name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}

	h.Cache.Invalidate(ctx, s.UserID)
	audit(s, queue.ActionTypeCreate, strconv.FormatInt(mt.ID, 10), name)
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "item": toMachineTypeItem(mt)})
}

// Update rewrites a catalog entry. A foreign or missing id is 404.
func (h *MachineTypeHandler) Update(c echo.Context) error {
	s := currentSession(c)

	var req machineTypeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id is required"})
	}
	code, err := validateMachineCode(req.MachineCode)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	name := strings.ToUpper(strings.TrimSpace(req.Name))
	if name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	mt, err := h.Types.Update(ctx, req.ID, s.UserID, code, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "machine type not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	h.Cache.Invalidate(ctx, s.UserID)
	audit(s, queue.ActionTypeUpdate, strconv.FormatInt(mt.ID, 10), name)
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "item": toMachineTypeItem(mt)})
}

type deleteMachineTypeReq struct {
	ID int64 `json:"id"`
}

// Delete soft-deletes a catalog entry.
func (h *MachineTypeHandler) Delete(c echo.Context) error {
	s := currentSession(c)

	var req deleteMachineTypeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Types.SoftDelete(ctx, req.ID, s.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "machine type not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	h.Cache.Invalidate(ctx, s.UserID)
	audit(s, queue.ActionTypeDelete, strconv.FormatInt(req.ID, 10), "")
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maquiflow/fleet-portal/internal/cache"
	"github.com/maquiflow/fleet-portal/internal/queue"
	"github.com/maquiflow/fleet-portal/internal/repository"
)

// MachineHandler manages a tenant admin's machine inventory, engines and file
// attachments included.
type MachineHandler struct {
	Machines *repository.MachineRepo
	Cache    *cache.ResponseCache
}

func NewMachineHandler(machines *repository.MachineRepo, rc *cache.ResponseCache) *MachineHandler {
	return &MachineHandler{Machines: machines, Cache: rc}
}

// machineItem is the wire shape for a machine. Field names are snake_case,
// matching what the frontend already sends and renders.
type machineItem struct {
	ID                  int64                    `json:"id"`
	MachineTypeID       *int64                   `json:"machine_type_id"`
	MachineTypeName     string                   `json:"machine_type_name,omitempty"`
	Name                string                   `json:"name"`
	Brand               string                   `json:"brand"`
	Model               string                   `json:"model"`
	Year                string                   `json:"year"`
	SerialNumber        string                   `json:"serial_number"`
	FuelType            string                   `json:"fuel_type"`
	ControlType         string                   `json:"control_type"`
	MaintenanceInterval string                   `json:"maintenance_interval"`
	Observations        string                   `json:"observations"`
	CreateCostCenter    bool                     `json:"create_cost_center"`
	IsActive            bool                     `json:"is_active"`
	CreatedAt           string                   `json:"created_at"`
	Engines             []repository.Engine      `json:"engines"`
	Files               []repository.MachineFile `json:"files"`
}

func toMachineItem(m *repository.Machine) machineItem {
	item := machineItem{
		ID:                  m.ID,
		MachineTypeID:       m.MachineTypeID,
		MachineTypeName:     m.MachineTypeName,
		Name:                m.Name,
		Brand:               m.Brand,
		Model:               m.Model,
		Year:                m.Year,
		SerialNumber:        m.SerialNumber,
		FuelType:            m.FuelType,
		ControlType:         m.ControlType,
		MaintenanceInterval: m.MaintenanceInterval,
		Observations:        m.Observations,
		CreateCostCenter:    m.CreateCostCenter,
		IsActive:            m.IsActive,
		CreatedAt:           m.CreatedAt.UTC().Format(time.RFC3339),
		Engines:             m.Engines,
		Files:               m.Files,
	}
	if item.Engines == nil {
		item.Engines = []repository.Engine{}
	}
	if item.Files == nil {
		item.Files = []repository.MachineFile{}
	}
	return item
}

type machineReq struct {
	ID                  int64                    `json:"id"`
	MachineTypeID       *int64                   `json:"machine_type_id"`
	Name                string                   `json:"name"`
	Brand               string                   `json:"brand"`
	Model               string                   `json:"model"`
	Year                string                   `json:"year"`
	SerialNumber        string                   `json:"serial_number"`
	FuelType            string                   `json:"fuel_type"`
	ControlType         string                   `json:"control_type"`
	MaintenanceInterval string                   `json:"maintenance_interval"`
	Observations        string                   `json:"observations"`
	CreateCostCenter    bool                     `json:"create_cost_center"`
	IsActive            *bool                    `json:"is_active"` // pointer: absent means active
	Engines             []repository.Engine      `json:"engines"`
	Files               []repository.MachineFile `json:"files"`
}

// toModel applies defaults and builds the repository model. Absent fuel type
// becomes DIESEL, absent control type Hourmeter, absent is_active true.
func (req *machineReq) toModel(ownerID int64) (*repository.Machine, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.New("name is required")
	}
	fuel := strings.TrimSpace(req.FuelType)
	if fuel == "" {
		fuel = repository.DefaultFuelType
	}
	control := strings.TrimSpace(req.ControlType)
	if control == "" {
		control = repository.ControlHourmeter
	}
	if control != repository.ControlHourmeter && control != repository.ControlOdometer {
		return nil, errors.New("control_type must be Hourmeter or Odometer")
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	engines := req.Engines
	if engines == nil {
		engines = []repository.Engine{}
	}
	files := req.Files
	if files == nil {
		files = []repository.MachineFile{}
	}
	return &repository.Machine{
		ID:                  req.ID,
		OwnerID:             ownerID,
		MachineTypeID:       req.MachineTypeID,
		Name:                name,
		Brand:               strings.TrimSpace(req.Brand),
		Model:               strings.TrimSpace(req.Model),
		Year:                strings.TrimSpace(req.Year),
		SerialNumber:        strings.TrimSpace(req.SerialNumber),
		FuelType:            fuel,
		ControlType:         control,
		MaintenanceInterval: strings.TrimSpace(req.MaintenanceInterval),
		Observations:        req.Observations,
		CreateCostCenter:    req.CreateCostCenter,
		IsActive:            active,
		Engines:             engines,
		Files:               files,
	}, nil
}

// List returns the caller's live machines, newest first, with type names and
// sub-collections attached.
func (h *MachineHandler) List(c echo.Context) error {
	s := currentSession(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	machines, err := h.Machines.ListByOwner(ctx, s.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	items := make([]machineItem, 0, len(machines))
	for _, m := range machines {
		items = append(items, toMachineItem(m))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Create inserts a machine with its engines and files in one transaction.
func (h *MachineHandler) Create(c echo.Context) error {
	s := currentSession(c)

	var req machineReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	m, err := req.toModel(s.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	m.ID = 0

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Machines.Create(ctx, m); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}

	h.Cache.Invalidate(ctx, s.UserID)
	audit(s, queue.ActionMachineCreate, strconv.FormatInt(m.ID, 10), m.Name)
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "item": toMachineItem(m)})
}

// Update rewrites the machine and replaces its engine and file sets with the
// ones supplied; an empty set clears the collection. Foreign ids are 404.
func (h *MachineHandler) Update(c echo.Context) error {
	s := currentSession(c)

	var req machineReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id is required"})
	}
	m, err := req.toModel(s.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Machines.Update(ctx, m); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "machine not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	h.Cache.Invalidate(ctx, s.UserID)
	audit(s, queue.ActionMachineUpdate, strconv.FormatInt(m.ID, 10), m.Name)
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "item": toMachineItem(m)})
}

type deleteMachineReq struct {
	ID int64 `json:"id"`
}

// Delete soft-deletes an owned machine. Engines and files stay put until the
// retention janitor purges the machine for good.
func (h *MachineHandler) Delete(c echo.Context) error {
	s := currentSession(c)

	var req deleteMachineReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Machines.SoftDelete(ctx, req.ID, s.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "machine not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	h.Cache.Invalidate(ctx, s.UserID)
	audit(s, queue.ActionMachineDelete, strconv.FormatInt(req.ID, 10), "")
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/maquiflow/fleet-portal/internal/queue"
	"github.com/maquiflow/fleet-portal/internal/storage"
)

// UploadHandler proxies multipart uploads into blob storage so browser
// clients never touch storage credentials.
type UploadHandler struct {
	Storage *storage.Client
}

func NewUploadHandler(st *storage.Client) *UploadHandler { return &UploadHandler{Storage: st} }

// Upload accepts a multipart form with a "file" part and an optional "path"
// override, stores the blob and returns its public URL.
func (h *UploadHandler) Upload(c echo.Context) error {
	s := currentSession(c)

	if h.Storage == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage not configured"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file is required"})
	}
	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable file"})
	}
	defer src.Close()

	key := strings.TrimSpace(c.FormValue("path"))
	if key == "" {
		key = "uploads/" + uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	url, err := h.Storage.Upload(ctx, key, src, fh.Header.Get("Content-Type"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}

	audit(s, queue.ActionFileUpload, key, fh.Filename)
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "url": url})
}

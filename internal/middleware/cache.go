package middleware

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maquiflow/fleet-portal/internal/cache"
)

// captureWriter tees the response body so a copy can be cached after the
// handler ran.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.buf.Write(b)
	return cw.ResponseWriter.Write(b)
}

// CacheResponse serves owner-scoped GET responses from the response cache and
// stores fresh 200s into it. Apply to inventory list routes only; the cache
// key is derived from the caller's user id, so it must run after SessionAuth
// and RequireSession.
func CacheResponse(rc *cache.ResponseCache) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rc.Enabled() || c.Request().Method != http.MethodGet {
				return next(c)
			}
			s := CurrentSession(c)
			if s == nil {
				return next(c)
			}

			ctx := c.Request().Context()
			route := c.Request().Method + " " + c.Path()
			query := c.Request().URL.RawQuery

			if e, ok := rc.Get(ctx, s.UserID, route, query); ok {
				c.Response().Header().Set(echo.HeaderContentType, e.ContentType)
				c.Response().Header().Set("X-Cache", "HIT")
				return c.Blob(e.Status, e.ContentType, e.Body)
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status == http.StatusOK {
				rc.Set(ctx, s.UserID, route, query, cache.Entry{
					Status:      cw.status,
					ContentType: c.Response().Header().Get(echo.HeaderContentType),
					Body:        cw.buf.Bytes(),
				})
			}
			return nil
		}
	}
}

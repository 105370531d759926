// Package handler contains the HTTP handlers. Each handler struct bundles the
// repositories it needs; request DTOs are bound into anonymous structs next to
// the code that validates them.
package handler

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maquiflow/fleet-portal/internal/auth"
	"github.com/maquiflow/fleet-portal/internal/middleware"
	"github.com/maquiflow/fleet-portal/internal/queue"
	queuepub "github.com/maquiflow/fleet-portal/internal/service"
)

// currentSession returns the decoded session for the request, or nil.
func currentSession(c echo.Context) *auth.Session {
	return middleware.CurrentSession(c)
}

// audit publishes an audit event in the background. Best-effort: the publisher
// logs its own failures, and a broker outage never delays or fails the
// request that triggered the event.
func audit(s *auth.Session, action, targetID, detail string) {
	ev := queue.AuditEvent{
		Action:     action,
		ActorID:    s.UserID,
		ActorRole:  int(s.RoleID),
		TargetID:   targetID,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queuepub.PublishAudit(ctx, ev)
	}()
}

package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry records one mutating API call.
type AuditEntry struct {
	ActorID    string
	ActorRoles []string
	Action     string // create, update, delete, or a command such as validate, cancel, close, pay
	EntityType string
	EntityID   string
	Path       string
	Method     string
	IPAddress  string
	UserAgent  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit records every POST, PUT, PATCH and DELETE under /api/v1/, including
// rejected ones. Reads are not audited. A recorder failure is logged and
// never fails the request.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = statusOf(err)
			}

			ctx := req.Context()
			entityType, entityID, command := parseEntityPath(req.URL.Path)
			entry := AuditEntry{
				ActorID:    auth.UserIDFromContext(ctx),
				ActorRoles: auth.RolesFromContext(ctx),
				Action:     actionFor(req.Method, command),
				EntityType: entityType,
				EntityID:   entityID,
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				// Detached from request cancellation so a client disconnect
				// does not drop the entry.
				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				if recErr := r.RecordAccess(rctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
				cancel()
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("actor_id", entry.ActorID).
				Strs("actor_roles", entry.ActorRoles).
				Str("action", entry.Action).
				Str("entity_type", entry.EntityType).
				Str("entity_id", entry.EntityID).
				Int("status", entry.StatusCode).
				Msg("ledger_mutation")

			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, apiPrefix) {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// parseEntityPath splits /api/v1/<entity>[/<id>][/<command>].
//
//	/api/v1/invoices                      -> invoices, "", ""
//	/api/v1/invoices/<id>/validate        -> invoices, <id>, validate
//	/api/v1/commissions/periods/2024-03   -> commissions, 2024-03, periods
func parseEntityPath(path string) (entity, id, command string) {
	segs := strings.Split(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return "unknown", "", ""
	}
	entity = segs[0]
	switch {
	case len(segs) >= 2 && isUUID(segs[1]):
		id = segs[1]
		if len(segs) >= 3 {
			command = segs[2]
		}
	case len(segs) >= 3:
		command, id = segs[1], segs[2]
	case len(segs) == 2:
		command = segs[1]
	}
	return entity, id, command
}

func actionFor(method, command string) string {
	if command != "" {
		return command
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

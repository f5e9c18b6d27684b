package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/models"
)

type auditRecorder interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Audit records successful mutating requests in the audit trail. Reads are
// not audited and recorder failures never affect the response.
func Audit(recorder auditRecorder, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		action := auditAction(c.Request.Method, c.FullPath())
		if action == "" || c.Writer.Status() >= http.StatusBadRequest {
			return
		}

		var userID *string
		if claims := Claims(c); claims != nil {
			id := claims.UserID
			userID = &id
		}
		var resourceID *string
		if id := c.Param("id"); id != "" {
			resourceID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		entry := &models.AuditLog{
			UserID:     userID,
			Action:     action,
			Resource:   auditResource(c.FullPath()),
			ResourceID: resourceID,
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		}
		if err := recorder.Create(c.Request.Context(), entry); err != nil {
			logger.Warn("audit log write failed", zap.Error(err), zap.String("path", c.FullPath()))
		}
	}
}

func auditAction(method, path string) string {
	switch method {
	case http.MethodPost:
		for _, suffix := range []string{"/complete", "/cancel", "/archive", "/unarchive", "/transfer-priority", "/move-student", "/active"} {
			if strings.HasSuffix(path, suffix) {
				return models.AuditActionTransition
			}
		}
		return models.AuditActionCreate
	case http.MethodPut, http.MethodPatch:
		if strings.HasSuffix(path, "/active") {
			return models.AuditActionTransition
		}
		return models.AuditActionUpdate
	case http.MethodDelete:
		return models.AuditActionDelete
	}
	return ""
}

// auditResource picks the first path segment after the role prefix, e.g.
// /api/admin/classes/:id/archive -> classes.
func auditResource(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		if segment == "admin" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	if len(segments) > 0 {
		return segments[len(segments)-1]
	}
	return ""
}

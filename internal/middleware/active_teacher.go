package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
	"github.com/noah-isme/repense-api/pkg/response"
)

// ContextTeacherKey stores the resolved teacher of a teacher route.
const ContextTeacherKey = "currentTeacher"

type activeTeacherChecker interface {
	EnsureActive(ctx context.Context, id string) (*models.Teacher, error)
}

// RequireActiveTeacher refuses teacher tokens whose teacher was deactivated.
// It must run after JWT.
func RequireActiveTeacher(checker activeTeacherChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		teacher, err := checker.EnsureActive(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextTeacherKey, teacher)
		c.Next()
	}
}

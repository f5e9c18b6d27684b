package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/middleware"
	"github.com/noah-isme/repense-api/internal/models"
)

// Handlers bundles every HTTP handler mounted under the API prefix.
type Handlers struct {
	Registration  *RegistrationHandler
	Classes       *ClassHandler
	Enrollments   *EnrollmentHandler
	Students      *StudentHandler
	Teachers      *TeacherHandler
	Sessions      *SessionHandler
	Notifications *NotificationHandler
	Dashboard     *DashboardHandler
	Exports       *ExportHandler
}

// Guards carries the collaborators of the auth and audit middlewares.
type Guards struct {
	Tokens interface {
		ValidateToken(token string) (*models.JWTClaims, error)
	}
	Teachers interface {
		EnsureActive(ctx context.Context, id string) (*models.Teacher, error)
	}
	Audit interface {
		Create(ctx context.Context, log *models.AuditLog) error
	}
	Logger *zap.Logger
}

// RegisterRoutes mounts the public, admin and teacher route groups.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, guards Guards) {
	api.POST("/register", h.Registration.Register)
	api.POST("/register/change-course", h.Registration.ConfirmCourseChange)
	api.POST("/students/priority-list", h.Registration.JoinPriorityList)

	admin := api.Group("/admin",
		middleware.JWT(guards.Tokens),
		middleware.RequireRoles(models.RoleAdmin),
		middleware.Audit(guards.Audit, guards.Logger),
	)
	{
		admin.GET("/dashboard", h.Dashboard.Admin)

		admin.GET("/classes", h.Classes.List)
		admin.POST("/classes", h.Classes.Create)
		admin.POST("/classes/batch/archive", h.Classes.BatchArchive)
		admin.GET("/classes/:id", h.Classes.Get)
		admin.PUT("/classes/:id", h.Classes.Update)
		admin.PUT("/classes/:id/active", h.Classes.SetActive)
		admin.POST("/classes/:id/archive", h.Classes.Archive)
		admin.POST("/classes/:id/unarchive", h.Classes.Unarchive)
		admin.POST("/classes/:id/final-report", h.Classes.SubmitFinalReport)
		admin.GET("/classes/:id/roster", h.Classes.Roster)
		admin.GET("/classes/:id/sessions", h.Sessions.ClassSessions)
		admin.GET("/classes/:id/attendance/export", h.Exports.ClassAttendance)
		admin.POST("/classes/:id/move-student", h.Students.MoveStudent)

		admin.GET("/enrollments", h.Enrollments.List)
		admin.POST("/enrollments", h.Enrollments.Create)
		admin.GET("/enrollments/:id", h.Enrollments.Get)
		admin.POST("/enrollments/:id/complete", h.Enrollments.Complete)
		admin.POST("/enrollments/:id/cancel", h.Enrollments.Cancel)

		admin.GET("/students", h.Students.List)
		admin.GET("/students/:id", h.Students.Get)
		admin.PUT("/students/:id", h.Students.Update)
		admin.GET("/students/:id/history", h.Students.History)
		admin.POST("/students/:id/transfer-priority", h.Students.TransferPriority)
		admin.GET("/priority-list", h.Students.PriorityList)

		admin.GET("/teachers", h.Teachers.List)
		admin.POST("/teachers", h.Teachers.Create)
		admin.GET("/teachers/:id", h.Teachers.Get)
		admin.PUT("/teachers/:id", h.Teachers.Update)
		admin.PUT("/teachers/:id/active", h.Teachers.SetActive)
		admin.GET("/teachers/:id/messages", h.Notifications.TeacherMessages)
		admin.POST("/teachers/:id/messages", h.Notifications.SendToTeacher)

		admin.GET("/notifications", h.Notifications.AdminFeed)
		admin.POST("/notifications/mark-read", h.Notifications.MarkRead)
	}

	teacher := api.Group("/teacher",
		middleware.JWT(guards.Tokens),
		middleware.RequireRoles(models.RoleTeacher),
		middleware.RequireActiveTeacher(guards.Teachers),
	)
	{
		teacher.GET("/classes", h.Classes.TeacherClasses)
		teacher.GET("/classes/:id/roster", h.Classes.Roster)
		teacher.POST("/classes/:id/final-report", h.Classes.SubmitFinalReport)

		teacher.POST("/sessions", h.Sessions.Open)
		teacher.GET("/sessions/current", h.Sessions.Current)
		teacher.GET("/sessions/:id", h.Sessions.Get)
		teacher.PUT("/sessions/:id", h.Sessions.Finalize)
		teacher.POST("/sessions/:id/attendance", h.Sessions.RecordAttendance)
		teacher.GET("/at-risk", h.Sessions.AtRisk)

		teacher.GET("/messages", h.Notifications.MyMessages)
		teacher.POST("/messages", h.Notifications.SendToAdmin)
		teacher.GET("/notifications", h.Notifications.TeacherFeed)
		teacher.POST("/notifications/mark-read", h.Notifications.MarkRead)
	}
}

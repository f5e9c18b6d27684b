package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/dto"
	"github.com/noah-isme/repense-api/internal/models"
)

type routerFixture struct {
	engine   *gin.Engine
	classes  *stubClasses
	sessions *stubSessions
	audit    *auditSink
}

func newRouterFixture() *routerFixture {
	fx := &routerFixture{
		classes:  &stubClasses{},
		sessions: &stubSessions{created: true},
		audit:    &auditSink{},
	}
	fx.engine = gin.New()
	RegisterRoutes(fx.engine.Group("/api"), Handlers{
		Registration:  NewRegistrationHandler(&stubRegistration{resp: &dto.RegisterResponse{EnrollmentID: "enr-1"}}, stubWaitlist{}),
		Classes:       NewClassHandler(fx.classes),
		Enrollments:   NewEnrollmentHandler(nil),
		Students:      NewStudentHandler(nil, nil),
		Teachers:      NewTeacherHandler(nil),
		Sessions:      NewSessionHandler(fx.sessions),
		Notifications: NewNotificationHandler(nil),
		Dashboard:     NewDashboardHandler(nil),
		Exports:       NewExportHandler(&stubExports{}),
	}, Guards{
		Tokens: stubTokens{
			"admin":   {UserID: "adm-1", Role: models.RoleAdmin},
			"teacher": {UserID: "tch-1", Role: models.RoleTeacher},
			"retired": {UserID: "tch-off", Role: models.RoleTeacher},
		},
		Teachers: stubTeacherGate{"tch-1": true, "tch-off": false},
		Audit:    fx.audit,
		Logger:   zap.NewNop(),
	})
	return fx
}

func (fx *routerFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	req := jsonRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	fx.engine.ServeHTTP(rec, req)
	return rec
}

func TestRoutesEnforceRoles(t *testing.T) {
	fx := newRouterFixture()

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"public registration", http.MethodPost, "/api/register", "", http.StatusCreated},
		{"public waitlist", http.MethodPost, "/api/students/priority-list", "", http.StatusCreated},
		{"admin without token", http.MethodGet, "/api/admin/classes", "", http.StatusUnauthorized},
		{"admin with teacher token", http.MethodGet, "/api/admin/classes", "teacher", http.StatusForbidden},
		{"admin list", http.MethodGet, "/api/admin/classes", "admin", http.StatusOK},
		{"admin export", http.MethodGet, "/api/admin/classes/class-a/attendance/export", "admin", http.StatusOK},
		{"teacher with admin token", http.MethodGet, "/api/teacher/classes", "admin", http.StatusForbidden},
		{"inactive teacher", http.MethodGet, "/api/teacher/classes", "retired", http.StatusForbidden},
		{"teacher classes", http.MethodGet, "/api/teacher/classes", "teacher", http.StatusOK},
		{"no open session", http.MethodGet, "/api/teacher/sessions/current", "teacher", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := fx.do(tc.method, tc.path, tc.token, map[string]string{})
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRoutesAuditAdminMutationsOnly(t *testing.T) {
	fx := newRouterFixture()

	require.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/api/admin/classes/class-a", "admin", nil).Code)
	require.Equal(t, http.StatusOK, fx.do(http.MethodPost, "/api/admin/classes/class-a/archive", "admin", nil).Code)
	require.Equal(t, http.StatusCreated, fx.do(http.MethodPost, "/api/teacher/sessions", "teacher", map[string]string{"class_id": "class-a"}).Code)

	require.Len(t, fx.audit.entries, 1)
	entry := fx.audit.entries[0]
	assert.Equal(t, models.AuditActionTransition, entry.Action)
	assert.Equal(t, "classes", entry.Resource)
	assert.Equal(t, []string{"class-a"}, fx.classes.archived)
	assert.Equal(t, "tch-1", fx.sessions.teacherID)
}

func TestRoutesBatchArchiveIsNotShadowedByID(t *testing.T) {
	fx := newRouterFixture()

	rec := fx.do(http.MethodPost, "/api/admin/classes/batch/archive", "admin", map[string][]string{"class_ids": {"class-a"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fx.classes.archived)
}

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
	"github.com/noah-isme/repense-api/pkg/middleware/requestid"
)

type stubValidator struct {
	claims map[string]*models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s.claims[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type stubTeacherChecker struct {
	teachers map[string]models.Teacher
}

func (s stubTeacherChecker) EnsureActive(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, ok := s.teachers[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "teacher not found")
	}
	if !teacher.EhAtivo {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "teacher is inactive")
	}
	return &teacher, nil
}

type recordingAudit struct {
	logs []models.AuditLog
	err  error
}

func (r *recordingAudit) Create(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, *log)
	return r.err
}

type recordingObserver struct {
	paths    []string
	statuses []int
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	r.paths = append(r.paths, path)
	r.statuses = append(r.statuses, status)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func newAuthRouter() *gin.Engine {
	validator := stubValidator{claims: map[string]*models.JWTClaims{
		"admin-token":   {UserID: "adm-1", Role: models.RoleAdmin},
		"teacher-token": {UserID: "tch-1", Role: models.RoleTeacher},
		"idle-token":    {UserID: "tch-off", Role: models.RoleTeacher},
	}}
	checker := stubTeacherChecker{teachers: map[string]models.Teacher{
		"tch-1":   {ID: "tch-1", EhAtivo: true},
		"tch-off": {ID: "tch-off"},
	}}
	r := gin.New()
	admin := r.Group("/admin", JWT(validator), RequireRoles(models.RoleAdmin))
	admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, Claims(c).UserID) })
	teacher := r.Group("/teacher", JWT(validator), RequireRoles(models.RoleTeacher), RequireActiveTeacher(checker))
	teacher.GET("/ping", func(c *gin.Context) {
		value, _ := c.Get(ContextTeacherKey)
		c.String(http.StatusOK, value.(*models.Teacher).ID)
	})
	return r
}

func TestAuthChain(t *testing.T) {
	router := newAuthRouter()

	cases := []struct {
		name   string
		path   string
		header string
		status int
		code   string
		body   string
	}{
		{name: "admin ok", path: "/admin/ping", header: "Bearer admin-token", status: http.StatusOK, body: "adm-1"},
		{name: "missing header", path: "/admin/ping", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "wrong scheme", path: "/admin/ping", header: "Basic admin-token", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "empty bearer", path: "/admin/ping", header: "Bearer ", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "unknown token", path: "/admin/ping", header: "Bearer nope", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "teacher on admin route", path: "/admin/ping", header: "Bearer teacher-token", status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "admin on teacher route", path: "/teacher/ping", header: "Bearer admin-token", status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "active teacher", path: "/teacher/ping", header: "bearer teacher-token", status: http.StatusOK, body: "tch-1"},
		{name: "inactive teacher", path: "/teacher/ping", header: "Bearer idle-token", status: http.StatusForbidden, code: "ACCOUNT_INACTIVE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, errorCode(t, w))
			}
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestAuditRecordsSuccessfulMutations(t *testing.T) {
	recorder := &recordingAudit{}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "adm-1", Role: models.RoleAdmin})
		c.Next()
	})
	r.Use(Audit(recorder, zap.NewNop()))
	r.GET("/api/admin/classes", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/admin/classes/:id/archive", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.PUT("/api/admin/classes/:id", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.POST("/api/admin/teachers", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for _, call := range []struct{ method, path string }{
		{http.MethodGet, "/api/admin/classes"},
		{http.MethodPost, "/api/admin/classes/class-1/archive"},
		{http.MethodPut, "/api/admin/classes/class-1"},
		{http.MethodPost, "/api/admin/teachers"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(call.method, call.path, nil))
	}

	require.Len(t, recorder.logs, 2)
	archived := recorder.logs[0]
	assert.Equal(t, models.AuditActionTransition, archived.Action)
	assert.Equal(t, "classes", archived.Resource)
	require.NotNil(t, archived.ResourceID)
	assert.Equal(t, "class-1", *archived.ResourceID)
	require.NotNil(t, archived.UserID)
	assert.Equal(t, "adm-1", *archived.UserID)

	created := recorder.logs[1]
	assert.Equal(t, models.AuditActionCreate, created.Action)
	assert.Equal(t, "teachers", created.Resource)
	assert.Nil(t, created.ResourceID)
}

func TestAuditFailureDoesNotAffectResponse(t *testing.T) {
	recorder := &recordingAudit{err: errors.New("db down")}
	r := gin.New()
	r.Use(Audit(recorder, nil))
	r.POST("/api/admin/classes", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/classes", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, recorder.logs, 1)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/api/admin/classes/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/admin/classes/abc", "/wp-login.php"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []string{"/api/admin/classes/:id", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, observer.statuses)
}

func TestResponseMeta(t *testing.T) {
	r := gin.New()
	r.Use(requestid.Middleware(), WithResponseMeta())
	var meta map[string]interface{}
	r.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestid.HeaderKey, "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-42", meta["request_id"])
	assert.Equal(t, true, meta["cache_hit"])
}

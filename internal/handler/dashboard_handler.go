package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repense-api/internal/dto"
	"github.com/noah-isme/repense-api/internal/middleware"
	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
	"github.com/noah-isme/repense-api/pkg/response"
)

type dashboardService interface {
	Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Admin godoc
// @Summary Per grupo totals of classes, seats, enrollments and waitlist
// @Tags Dashboard
// @Produce json
// @Param grupo query string false "Restrict the groups list to one grupo"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/dashboard [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	grupo := models.Grupo(strings.ToLower(strings.TrimSpace(c.Query("grupo"))))
	if grupo != "" && !grupo.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "grupo must be igreja, espiritualidade or evangelho"))
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.service.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if grupo != "" {
		summary = onlyGrupo(summary, grupo)
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}

// onlyGrupo narrows the groups list without touching the totals, which stay
// global. The cached value is not mutated.
func onlyGrupo(summary *dto.AdminDashboardResponse, grupo models.Grupo) *dto.AdminDashboardResponse {
	narrowed := *summary
	narrowed.Groups = make([]dto.GroupSummary, 0, 1)
	for _, g := range summary.Groups {
		if g.Grupo == string(grupo) {
			narrowed.Groups = append(narrowed.Groups, g)
		}
	}
	return &narrowed
}

package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repense-api/internal/service"
	"github.com/noah-isme/repense-api/pkg/response"
)

type exportService interface {
	ClassAttendance(ctx context.Context, classID string, format service.ExportFormat) (*service.ExportFile, error)
}

// ExportHandler streams generated attendance sheets.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// ClassAttendance godoc
// @Summary Download the attendance sheet of a class
// @Tags Classes
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /admin/classes/{id}/attendance/export [get]
func (h *ExportHandler) ClassAttendance(c *gin.Context) {
	format := service.ExportFormat(strings.TrimSpace(c.Query("format")))
	file, err := h.exports.ClassAttendance(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

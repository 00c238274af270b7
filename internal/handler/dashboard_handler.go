package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rahull-prog/iiitnrattendence/internal/service"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
	"github.com/rahull-prog/iiitnrattendence/pkg/response"
)

// DashboardHandler wires HTTP endpoints to the dashboard and export services.
type DashboardHandler struct {
	dashboards *service.DashboardService
	exports    *service.ExportService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(dashboards *service.DashboardService, exports *service.ExportService) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards, exports: exports}
}

// Faculty godoc
// @Summary Faculty dashboard
// @Description Today's sessions with running present counts
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/faculty [get]
func (h *DashboardHandler) Faculty(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dashboard, err := h.dashboards.Faculty(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// Student godoc
// @Summary Student dashboard
// @Description Overall attendance percentage plus today's marks
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/student [get]
func (h *DashboardHandler) Student(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dashboard, err := h.dashboards.Student(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// Export godoc
// @Summary Export session report
// @Description Download the session roster as CSV or PDF
// @Tags Dashboard
// @Produce octet-stream
// @Param id path string true "Session id"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /sessions/{id}/export [get]
func (h *DashboardHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	artifact, err := h.exports.SessionReport(c.Request.Context(), claims.UserID, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+artifact.FileName+`"`)
	c.Data(http.StatusOK, artifact.ContentType, artifact.Body)
}

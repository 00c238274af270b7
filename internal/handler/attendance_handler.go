package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rahull-prog/iiitnrattendence/internal/service"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
	"github.com/rahull-prog/iiitnrattendence/pkg/response"
)

// AttendanceHandler wires HTTP endpoints to the attendance service.
type AttendanceHandler struct {
	service    *service.AttendanceService
	dashboards *service.DashboardService
}

// NewAttendanceHandler creates a new handler. dashboards may be nil.
func NewAttendanceHandler(svc *service.AttendanceService, dashboards *service.DashboardService) *AttendanceHandler {
	return &AttendanceHandler{service: svc, dashboards: dashboards}
}

// Scan godoc
// @Summary Record scan
// @Description Verify a scanned QR payload and mark the calling student present
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.ScanRequest true "Scan payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /attendance/scan [post]
func (h *AttendanceHandler) Scan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}

	result, err := h.service.RecordScan(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.dashboards != nil {
		h.dashboards.InvalidateStudents(c.Request.Context(), claims.UserID)
	}
	response.Created(c, result)
}

// ApplyManual godoc
// @Summary Apply manual attendance
// @Description Reconcile the session's present set against the declared one
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session id"
// @Param payload body service.ManualAttendanceRequest true "Present set"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions/{id}/attendance [put]
func (h *AttendanceHandler) ApplyManual(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ManualAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}

	result, err := h.service.ApplyManual(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.dashboards != nil {
		h.dashboards.InvalidateFaculty(c.Request.Context(), claims.UserID)
		h.dashboards.InvalidateStudents(c.Request.Context(), req.PresentStudentIDs...)
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List session attendance
// @Description Return the session's marked entries for the owner or an enrolled student
// @Tags Attendance
// @Produce json
// @Param id path string true "Session id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rows, err := h.service.SessionAttendance(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Roster godoc
// @Summary Session roster
// @Description Return every enrolled student with their current mark
// @Tags Attendance
// @Produce json
// @Param id path string true "Session id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions/{id}/roster [get]
func (h *AttendanceHandler) Roster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rows, err := h.service.Roster(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

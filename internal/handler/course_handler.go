package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rahull-prog/iiitnrattendence/internal/service"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
	"github.com/rahull-prog/iiitnrattendence/pkg/response"
)

// CourseHandler wires HTTP endpoints to the course service.
type CourseHandler struct {
	service *service.CourseService
}

// NewCourseHandler creates a new handler.
func NewCourseHandler(svc *service.CourseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// Create godoc
// @Summary Create course
// @Description Create a course owned by the calling faculty member
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// GenerateJoinCode godoc
// @Summary Generate join code
// @Description Assign a join code to a course that has none
// @Tags Courses
// @Produce json
// @Param id path string true "Course id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/join-code [post]
func (h *CourseHandler) GenerateJoinCode(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	code, err := h.service.GenerateJoinCode(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"join_code": code}, nil)
}

// Join godoc
// @Summary Join course by code
// @Description Enroll the calling student using a join code
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body handler.joinCourseRequest true "Join payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/join [post]
func (h *CourseHandler) Join(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req joinCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "join code required"))
		return
	}

	course, err := h.service.JoinByCode(c.Request.Context(), claims.UserID, strings.TrimSpace(req.JoinCode))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

type joinCourseRequest struct {
	JoinCode string `json:"join_code" binding:"required"`
}

// EnrollStudent godoc
// @Summary Enroll student
// @Description Directly enroll a student into a course the caller owns
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course id"
// @Param payload body handler.enrollStudentRequest true "Enrollment payload"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/students [post]
func (h *CourseHandler) EnrollStudent(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req enrollStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "student id required"))
		return
	}

	if err := h.service.EnrollStudent(c.Request.Context(), claims.UserID, c.Param("id"), req.StudentID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type enrollStudentRequest struct {
	StudentID string `json:"student_id" binding:"required"`
}

// UnenrollStudent godoc
// @Summary Unenroll student
// @Description Deactivate a student's enrollment in a course the caller owns
// @Tags Courses
// @Produce json
// @Param id path string true "Course id"
// @Param studentId path string true "Student id"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/students/{studentId} [delete]
func (h *CourseHandler) UnenrollStudent(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Unenroll(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListMine godoc
// @Summary List owned courses
// @Description List courses owned by the calling faculty member
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courses, err := h.service.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// ListEnrolled godoc
// @Summary List enrolled courses
// @Description List courses the calling student is enrolled in
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses/enrolled [get]
func (h *CourseHandler) ListEnrolled(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courses, err := h.service.ListEnrolled(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Members godoc
// @Summary List course members
// @Description List active enrollments for a course the caller owns
// @Tags Courses
// @Produce json
// @Param id path string true "Course id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{id}/students [get]
func (h *CourseHandler) Members(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	members, err := h.service.Members(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
	"github.com/rahull-prog/iiitnrattendence/internal/service"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
	"github.com/rahull-prog/iiitnrattendence/pkg/response"
)

// ProfileHandler wires HTTP endpoints to the profile service.
type ProfileHandler struct {
	service *service.ProfileService
}

// NewProfileHandler creates a new handler.
func NewProfileHandler(svc *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{service: svc}
}

// Get godoc
// @Summary Get own profile
// @Description Returns the caller's full profile
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.service.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Update godoc
// @Summary Update own profile
// @Description Merges the provided fields into the caller's profile
// @Tags Profile
// @Accept json
// @Produce json
// @Param payload body models.ProfilePatch true "Profile patch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /profile [put]
func (h *ProfileHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var patch models.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}

	user, err := h.service.UpdateMe(c.Request.Context(), claims.UserID, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hitpixel/pillflow-api/internal/handler"
	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/service/patient"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
)

type Handler struct {
	service *patient.Service
}

func NewHandler(service *patient.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
		patients.DELETE("/:id", h.DeactivatePatient)
	}
	// Token resolution is its own resource: the token is the lookup key and
	// the audit row is written before the response.
	r.GET("/shared/:token", h.GetByShareToken)
}

func (h *Handler) CreatePatient(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.Create(c.Request.Context(), callerID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) GetPatient(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}

	view, err := h.service.Get(c.Request.Context(), id, callerID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(view))
}

func (h *Handler) GetByShareToken(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	view, err := h.service.GetByShareToken(c.Request.Context(), c.Param("token"), callerID)
	if err != nil {
		// A denied probe looks identical to a token that resolves to nothing,
		// so holders of a guessed token cannot confirm a record exists.
		if apperrors.HasCode(err, apperrors.ErrForbidden) || apperrors.HasCode(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, handler.NewErrorResponse("patient not found"))
			return
		}
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(view))
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}

	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	updated, err := h.service.Update(c.Request.Context(), id, callerID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}

func (h *Handler) DeactivatePatient(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), id, callerID); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) ListPatients(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	patients, err := h.service.List(c.Request.Context(), callerID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(patients))
}

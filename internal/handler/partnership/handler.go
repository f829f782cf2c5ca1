package partnership

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hitpixel/pillflow-api/internal/handler"
	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/service/partnership"
)

type Handler struct {
	service *partnership.Service
}

func NewHandler(service *partnership.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	partnerships := r.Group("/partnerships")
	{
		partnerships.POST("", h.Propose)
		partnerships.GET("", h.List)
		partnerships.GET("/:id", h.Get)
		partnerships.POST("/accept", h.Accept)
	}
}

func (h *Handler) Propose(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	var req model.CreatePartnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.Propose(c.Request.Context(), callerID, model.PartnershipType(req.Type), req.Notes)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) Accept(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	var req model.AcceptPartnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	accepted, err := h.service.Accept(c.Request.Context(), req.Token, callerID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(accepted))
}

func (h *Handler) Get(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}

	p, err := h.service.Get(c.Request.Context(), id, callerID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(p))
}

func (h *Handler) List(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	partnerships, err := h.service.List(c.Request.Context(), callerID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(partnerships))
}

package organization

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hitpixel/pillflow-api/internal/handler"
	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/service/organization"
)

type Handler struct {
	service *organization.Service
}

func NewHandler(service *organization.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orgs := r.Group("/organizations")
	{
		orgs.POST("", h.CreateOrganization)
		orgs.GET("", h.ListOrganizations)
		orgs.GET("/:id", h.GetOrganization)
		orgs.POST("/members", h.AddMember)
		orgs.DELETE("/members/:userId", h.RemoveMember)
	}
	r.GET("/me", h.GetMe)
}

func (h *Handler) CreateOrganization(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	var req model.CreateOrganizationRequest
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

func (h *Handler) GetOrganization(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}

	org, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(org))
}

func (h *Handler) ListOrganizations(c *gin.Context) {
	orgs, err := h.service.List(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(orgs))
}

func (h *Handler) AddMember(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	var req model.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	member, err := h.service.AddMember(c.Request.Context(), callerID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(member))
}

func (h *Handler) RemoveMember(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}
	userID, ok := handler.PathID(c, "userId")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(c.Request.Context(), callerID, userID); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) GetMe(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	member, err := h.service.GetMember(c.Request.Context(), callerID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(member))
}

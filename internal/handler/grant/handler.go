package grant

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hitpixel/pillflow-api/internal/handler"
	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/service/grant"
)

type Handler struct {
	service *grant.Service
}

func NewHandler(service *grant.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	grants := r.Group("/grants")
	{
		grants.POST("", h.RequestAccess)
		grants.GET("", h.ListMine)
		grants.POST("/:id/approve", h.ApproveAccess)
		grants.POST("/:id/deny", h.DenyAccess)
		grants.POST("/:id/revoke", h.RevokeAccess)
	}
	r.GET("/patients/:id/grants", h.ListForPatient)
}

func (h *Handler) RequestAccess(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	var req model.RequestAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.RequestAccess(c.Request.Context(), req.ShareToken, callerID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) ApproveAccess(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}

	var req model.ApproveAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	perms := make(model.PermissionList, len(req.Permissions))
	for i, p := range req.Permissions {
		perms[i] = model.Permission(p)
	}

	if err := h.service.ApproveAccess(c.Request.Context(), id, callerID, perms, req.ExpiresAt); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) DenyAccess(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DenyAccess(c.Request.Context(), id, callerID); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) RevokeAccess(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.RevokeAccess(c.Request.Context(), id, callerID); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) ListForPatient(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}
	patientID, ok := handler.PathID(c, "id")
	if !ok {
		return
	}

	grants, err := h.service.ListForPatient(c.Request.Context(), patientID, callerID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(grants))
}

func (h *Handler) ListMine(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	grants, err := h.service.ListForGrantee(c.Request.Context(), callerID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(grants))
}

package audit

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hitpixel/pillflow-api/internal/handler"
	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/service/audit"
)

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/patients/:id/access-logs", h.ListForPatient)
	r.GET("/access-logs/mine", h.ListMine)
}

type listResponse struct {
	Entries []*model.ShareTokenAccessLog `json:"entries"`
	Total   int64                        `json:"total"`
}

// ListForPatient returns the audit trail for a patient. Authorization lives
// in the service: only grant-manager roles of the owning organization see
// the trail, or its size.
func (h *Handler) ListForPatient(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}
	patientID, ok := handler.PathID(c, "id")
	if !ok {
		return
	}

	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	entries, total, err := h.service.ListForPatient(c.Request.Context(), patientID, callerID, p)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(listResponse{Entries: entries, Total: total}))
}

// ListMine returns the caller's own access history across patients.
func (h *Handler) ListMine(c *gin.Context) {
	callerID, ok := handler.MustCallerID(c)
	if !ok {
		return
	}

	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	entries, total, err := h.service.ListForAccessor(c.Request.Context(), callerID, p)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(listResponse{Entries: entries, Total: total}))
}

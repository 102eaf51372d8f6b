package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/task-notifier/internal/middleware"
	"github.com/jwalitptl/task-notifier/internal/model"
	notificationService "github.com/jwalitptl/task-notifier/internal/service/notification"
	"github.com/jwalitptl/task-notifier/internal/service/offline"
	"github.com/jwalitptl/task-notifier/internal/service/presence"
	"github.com/jwalitptl/task-notifier/pkg/errors"
	"github.com/jwalitptl/task-notifier/pkg/httputil"
)

type Handler struct {
	service  notificationService.Service
	offline  offline.Service
	presence presence.Service
}

func NewHandler(service notificationService.Service, offlineSvc offline.Service, presenceSvc presence.Service) *Handler {
	return &Handler{
		service:  service,
		offline:  offlineSvc,
		presence: presenceSvc,
	}
}

// RegisterRoutes expects r to be behind auth.Authenticate.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("/offline", h.GetOffline)
		notifications.DELETE("/offline", h.ClearOffline)

		admin := notifications.Group("", auth.RequireRole(model.RoleAdmin, model.RoleProjectManager))
		admin.POST("/users/:userId", h.SendToUser)
		admin.POST("/roles/:role", h.SendToRole)
		admin.POST("/broadcast", h.Broadcast)
	}

	r.GET("/presence/online", h.ListOnline)
}

type sendRequest struct {
	Type    string                 `json:"type" binding:"required"`
	Title   string                 `json:"title" binding:"required"`
	Message string                 `json:"message" binding:"required"`
	Data    map[string]interface{} `json:"data"`
}

func (r sendRequest) content() model.NotificationContent {
	return model.NotificationContent{
		Type:    model.NotificationType(r.Type),
		Title:   r.Title,
		Message: r.Message,
		Data:    r.Data,
	}
}

type sendResponse struct {
	Recipients int `json:"recipients"`
}

func (h *Handler) SendToUser(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(err.Error(), err))
		return
	}

	n, err := h.service.SendToUser(c.Request.Context(), c.Param("userId"), req.content())
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, sendResponse{Recipients: n})
}

func (h *Handler) SendToRole(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(err.Error(), err))
		return
	}

	n, err := h.service.SendToRole(c.Request.Context(), model.Role(c.Param("role")), req.content())
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, sendResponse{Recipients: n})
}

func (h *Handler) Broadcast(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(err.Error(), err))
		return
	}

	n, err := h.service.Broadcast(c.Request.Context(), req.content())
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, sendResponse{Recipients: n})
}

func (h *Handler) GetOffline(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	httputil.RespondWithSuccess(c, http.StatusOK, h.offline.Drain(c.Request.Context(), userID))
}

func (h *Handler) ClearOffline(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	h.offline.Clear(c.Request.Context(), userID)
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"userId": userID})
}

func (h *Handler) ListOnline(c *gin.Context) {
	httputil.RespondWithSuccess(c, http.StatusOK, h.presence.ListOnline(c.Request.Context()))
}

package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/utils"
)

type NotificationController struct {
	store services.NotificationStore
}

func NewNotificationController(store services.NotificationStore) *NotificationController {
	return &NotificationController{store: store}
}

// List returns notifications newest first; ?unread=true hides read ones.
func (n *NotificationController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	unreadOnly, _ := strconv.ParseBool(ctx.DefaultQuery("unread", "false"))
	items, err := n.store.List(ctx.Request.Context(), userID, unreadOnly)
	if err != nil {
		utils.Logger.Warn("list notifications failed", zap.Uint("user_id", userID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50090, "failed to load notifications")
		return
	}
	unread := 0
	for _, it := range items {
		if !it.Read {
			unread++
		}
	}
	utils.Success(ctx, gin.H{"items": items, "unread_count": unread})
}

func (n *NotificationController) MarkRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	id := strings.TrimSpace(ctx.Param("id"))
	found, err := n.store.MarkRead(ctx.Request.Context(), userID, id)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50091, "failed to update notification")
		return
	}
	if !found {
		utils.Error(ctx, http.StatusNotFound, 40480, "notification not found")
		return
	}
	utils.Respond(ctx, http.StatusOK, 0, "Notification marked as read", nil)
}

func (n *NotificationController) MarkAllRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	count, err := n.store.MarkAllRead(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50092, "failed to update notifications")
		return
	}
	utils.Success(ctx, gin.H{"marked": count})
}

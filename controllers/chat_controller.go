package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/metrics"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/utils"
)

type ChatController struct {
	advisor ai.Advisor
	history services.ChatHistory
}

func NewChatController(advisor ai.Advisor, history services.ChatHistory) *ChatController {
	return &ChatController{advisor: advisor, history: history}
}

// Send answers a message using the user's recent conversation as context.
func (c *ChatController) Send(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "message is required")
		return
	}
	message := utils.SanitizeText(req.Message, 2000)
	if message == "" {
		utils.Error(ctx, http.StatusBadRequest, 40080, "message is required")
		return
	}

	rctx := ctx.Request.Context()
	history, err := c.history.Recent(rctx, userID)
	if err != nil {
		metrics.RecordDegraded("chat_history")
		utils.Logger.Warn("load chat history failed", zap.Uint("user_id", userID), zap.Error(err))
		history = nil
	}

	reply := c.advisor.Chat(userContext(ctx, userID), message, history)

	if err := c.history.Append(rctx, userID,
		ai.ChatMessage{Role: ai.RoleUser, Content: message},
		ai.ChatMessage{Role: ai.RoleAssistant, Content: reply.Text},
	); err != nil {
		metrics.RecordDegraded("chat_history")
		utils.Logger.Warn("save chat history failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	utils.Success(ctx, gin.H{"response": reply.Text, "used_fallback": reply.UsedFallback})
}

func (c *ChatController) Clear(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	if err := c.history.Clear(ctx.Request.Context(), userID); err != nil {
		utils.Logger.Warn("clear chat history failed", zap.Uint("user_id", userID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to clear chat history")
		return
	}
	utils.Respond(ctx, http.StatusOK, 0, "Chat history cleared", nil)
}

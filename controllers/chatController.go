package controllers

import (
	"context"
	"net/http"
	"time"

	"civicsync-api/agent"
	"civicsync-api/middlewares"
	"civicsync-api/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const openFormMessage = "Sure! Let's report an issue. Please fill in the details below."

// Assistant answers chat messages.
type Assistant interface {
	Chat(ctx context.Context, userID, userName, message string) string
	Reset(ctx context.Context, userID string) error
}

type ChatController struct {
	assistant Assistant
	users     store.UserDirectory
	logger    *zap.Logger
	now       func() time.Time
}

func NewChatController(assistant Assistant, users store.UserDirectory, logger *zap.Logger) *ChatController {
	return &ChatController{assistant: assistant, users: users, logger: logger, now: time.Now}
}

type chatRequest struct {
	Message string `json:"message" binding:"required,min=1,max=1000"`
}

type chatResponse struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	OpenForm  bool   `json:"openForm"`
}

// SendMessage handles POST /api/chat
func (cc *ChatController) SendMessage(c *gin.Context) {
	var input chatRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	userID := middlewares.CurrentActor(c).UserID
	userName := ""
	names, err := cc.users.UserNames(c.Request.Context(), []string{userID})
	if err != nil {
		cc.logger.Warn("chat user lookup failed", zap.String("user_id", userID), zap.Error(err))
	} else {
		userName = names[userID]
	}

	reply := cc.assistant.Chat(c.Request.Context(), userID, userName, input.Message)

	resp := chatResponse{Message: reply, Timestamp: cc.now().UnixMilli()}
	if reply == agent.OpenFormResponse {
		resp.Message = openFormMessage
		resp.OpenForm = true
	}
	c.JSON(http.StatusOK, resp)
}

// ResetConversation handles DELETE /api/chat
func (cc *ChatController) ResetConversation(c *gin.Context) {
	if err := cc.assistant.Reset(c.Request.Context(), middlewares.CurrentActor(c).UserID); err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation reset"})
}

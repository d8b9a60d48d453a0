package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/response"
	"github.com/xxxsen/docchat/internal/service"
)

type ChatHandler struct {
	chat          *service.ChatService
	conversations *service.ConversationService
}

func NewChatHandler(chat *service.ChatService, conversations *service.ConversationService) *ChatHandler {
	return &ChatHandler{chat: chat, conversations: conversations}
}

type chatRequest struct {
	Message        string     `json:"message"`
	ConversationID flexibleID `json:"conversationId"`
}

type summarizeRequest struct {
	UserID   string `json:"userId"`
	Filename string `json:"filename"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := bindJSON(c, &req); err != nil {
		handleError(c, err)
		return
	}
	// reject before the ownership lookup touches the store
	if strings.TrimSpace(req.Message) == "" {
		handleError(c, appErr.Validation("message is required"))
		return
	}
	if id := req.ConversationID.Value; id != nil {
		owned, err := checkOwner(c, h.conversations, *id)
		if err != nil {
			handleError(c, err)
			return
		}
		if !owned {
			handleError(c, errConversationNotFound)
			return
		}
	}
	res, err := h.chat.Chat(c.Request.Context(), req.Message, req.ConversationID.Value)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ChatHandler) Summarize(c *gin.Context) {
	var req summarizeRequest
	if err := bindJSON(c, &req); err != nil {
		handleError(c, err)
		return
	}
	userID, err := resolveUserID(c, req.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	res, err := h.chat.Summarize(c.Request.Context(), userID, req.Filename)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/middleware"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/response"
	"github.com/xxxsen/docchat/internal/service"
)

type ConversationHandler struct {
	conversations *service.ConversationService
}

func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

type createConversationRequest struct {
	UserID string                 `json:"userId"`
	Title  string                 `json:"title"`
	Type   model.ConversationType `json:"type"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := bindJSON(c, &req); err != nil {
		handleError(c, err)
		return
	}
	userID, err := resolveUserID(c, req.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	conv, err := h.conversations.Create(c.Request.Context(), userID, req.Title, req.Type)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, conv)
}

// List serves GET /conversations/:id where the segment is the user id.
func (h *ConversationHandler) List(c *gin.Context) {
	userID, err := resolveUserID(c, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	items, err := h.conversations.List(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	owned, err := checkOwner(c, h.conversations, id)
	if err != nil {
		handleError(c, err)
		return
	}
	if !owned {
		response.Success(c, []model.Message{})
		return
	}
	items, err := h.conversations.Messages(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	owned, err := checkOwner(c, h.conversations, id)
	if err != nil {
		handleError(c, err)
		return
	}
	if !owned {
		handleError(c, appErr.ErrNotFound)
		return
	}
	if err := h.conversations.Delete(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, deleteResponse{Success: true})
}

type conversationGetter interface {
	Get(ctx context.Context, id int64) (*model.Conversation, error)
}

// checkOwner reports whether the conversation exists for the caller. It is
// a no-op returning true when auth is off, and fails with forbidden when the
// conversation belongs to someone else.
func checkOwner(c *gin.Context, convs conversationGetter, id int64) (bool, error) {
	userID := middleware.AuthUserID(c)
	if userID == "" {
		return true, nil
	}
	conv, err := convs.Get(c.Request.Context(), id)
	if err != nil {
		if appErr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if conv.UserID != userID {
		return false, appErr.ErrForbidden
	}
	return true, nil
}

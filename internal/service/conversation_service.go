package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/timeutil"
)

const maxTitleRunes = 50

// ConversationStore is the relational contract behind conversations.
// RecordTurn and CreateWithMessages must each run in one transaction.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id int64) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
	UpdateTitleIfDefault(ctx context.Context, id int64, title string, now int64) (bool, error)
	Touch(ctx context.Context, id int64, now int64) error
	DeleteConversation(ctx context.Context, id int64) error
	AppendMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error)
	RecordTurn(ctx context.Context, conversationID int64, candidateTitle string, msgs []*model.Message, now int64) error
	CreateWithMessages(ctx context.Context, conv *model.Conversation, msgs []*model.Message) error
}

type ConversationService struct {
	store ConversationStore
	now   func() int64
}

func NewConversationService(store ConversationStore) *ConversationService {
	return &ConversationService{store: store, now: timeutil.NowUnixMilli}
}

// TruncateTitle keeps the first 50 characters and marks the cut with "...".
func TruncateTitle(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxTitleRunes {
		return s
	}
	return string(runes[:maxTitleRunes]) + "..."
}

func persistErr(err error) error {
	if err == nil || appErr.IsNotFound(err) {
		return err
	}
	return appErr.Wrap(appErr.ErrPersistence, err)
}

func (s *ConversationService) Create(ctx context.Context, userID, title string, typ model.ConversationType) (*model.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, appErr.Validation("userId is required")
	}
	if typ == "" {
		typ = model.ConversationTypeChat
	}
	if !typ.Valid() {
		return nil, appErr.Validation("type must be chat or summary")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultConversationTitle
	}
	now := s.now()
	conv := &model.Conversation{
		UserID:    userID,
		Title:     title,
		Type:      typ,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		logutil.GetLogger(ctx).Error("create conversation failed", zap.String("user_id", userID), zap.Error(err))
		return nil, persistErr(err)
	}
	return conv, nil
}

func (s *ConversationService) Get(ctx context.Context, id int64) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, persistErr(err)
	}
	return conv, nil
}

// List hides conversations without messages.
func (s *ConversationService) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, appErr.Validation("userId is required")
	}
	items, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, persistErr(err)
	}
	return items, nil
}

// Messages of a deleted or unknown conversation read as an empty list.
func (s *ConversationService) Messages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	items, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, persistErr(err)
	}
	if items == nil {
		items = []model.Message{}
	}
	return items, nil
}

func (s *ConversationService) Append(ctx context.Context, conversationID int64, role model.MessageRole, content string, docs []model.ChunkMatch) (*model.Message, error) {
	if role != model.RoleUser && role != model.RoleAssistant {
		return nil, appErr.Validation("role must be user or assistant")
	}
	if role == model.RoleUser {
		docs = nil
	}
	msg := &model.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Documents:      docs,
		CreatedAt:      s.now(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, persistErr(err)
	}
	return msg, nil
}

// MaybeRetitle only replaces the default title; later calls are no-ops.
func (s *ConversationService) MaybeRetitle(ctx context.Context, conversationID int64, candidate string) (bool, error) {
	title := TruncateTitle(candidate)
	if title == "" {
		return false, nil
	}
	changed, err := s.store.UpdateTitleIfDefault(ctx, conversationID, title, s.now())
	if err != nil {
		return false, persistErr(err)
	}
	return changed, nil
}

func (s *ConversationService) Touch(ctx context.Context, conversationID int64) error {
	return persistErr(s.store.Touch(ctx, conversationID, s.now()))
}

func (s *ConversationService) Delete(ctx context.Context, conversationID int64) error {
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return persistErr(err)
	}
	logutil.GetLogger(ctx).Info("conversation deleted", zap.Int64("conversation_id", conversationID))
	return nil
}

// RecordTurn retitles, appends the user then the assistant message and
// refreshes updated_at in one transaction.
func (s *ConversationService) RecordTurn(ctx context.Context, conversationID int64, question, answer string, docs []model.ChunkMatch) ([]model.Message, error) {
	now := s.now()
	if docs == nil {
		docs = []model.ChunkMatch{}
	}
	user := &model.Message{Role: model.RoleUser, Content: question, CreatedAt: now}
	assistant := &model.Message{Role: model.RoleAssistant, Content: answer, Documents: docs, CreatedAt: now}
	if err := s.store.RecordTurn(ctx, conversationID, TruncateTitle(question), []*model.Message{user, assistant}, now); err != nil {
		logutil.GetLogger(ctx).Error("record chat turn failed", zap.Int64("conversation_id", conversationID), zap.Error(err))
		return nil, persistErr(err)
	}
	return []model.Message{*user, *assistant}, nil
}

// CreateSummary stores a summary conversation together with its request
// and answer so it is never visible without messages.
func (s *ConversationService) CreateSummary(ctx context.Context, userID, filename, summary string, docs []model.ChunkMatch) (*model.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, appErr.Validation("userId is required")
	}
	filename = strings.TrimSpace(filename)
	title := "Document Summary"
	request := "Summarize the document"
	if filename != "" {
		title = TruncateTitle("Summary: " + filename)
		request = "Summarize " + filename
	}
	if docs == nil {
		docs = []model.ChunkMatch{}
	}
	now := s.now()
	conv := &model.Conversation{
		UserID:    userID,
		Title:     title,
		Type:      model.ConversationTypeSummary,
		CreatedAt: now,
		UpdatedAt: now,
	}
	msgs := []*model.Message{
		{Role: model.RoleUser, Content: request, CreatedAt: now},
		{Role: model.RoleAssistant, Content: summary, Documents: docs, CreatedAt: now},
	}
	if err := s.store.CreateWithMessages(ctx, conv, msgs); err != nil {
		logutil.GetLogger(ctx).Error("create summary conversation failed", zap.String("user_id", userID), zap.Error(err))
		return nil, persistErr(err)
	}
	return conv, nil
}

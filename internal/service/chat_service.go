package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type ChatConfig struct {
	ChatTopK    int
	SummaryTopK int
}

type ChatResult struct {
	Message string             `json:"message"`
	Docs    []model.ChunkMatch `json:"docs"`
}

type SummaryResult struct {
	Summary        string             `json:"summary"`
	ConversationID int64              `json:"conversationId"`
	Docs           []model.ChunkMatch `json:"docs"`
}

// ChatService runs retrieval, synthesis and then persistence. Nothing is
// written when an earlier step fails.
type ChatService struct {
	retrieval     *RetrievalService
	answers       *AnswerService
	conversations *ConversationService
	cfg           ChatConfig
}

func NewChatService(retrieval *RetrievalService, answers *AnswerService, conversations *ConversationService, cfg ChatConfig) *ChatService {
	if cfg.ChatTopK <= 0 {
		cfg.ChatTopK = 2
	}
	if cfg.SummaryTopK <= 0 {
		cfg.SummaryTopK = 10
	}
	return &ChatService{retrieval: retrieval, answers: answers, conversations: conversations, cfg: cfg}
}

// Chat answers message from the index. A nil conversationID skips persistence.
func (s *ChatService) Chat(ctx context.Context, message string, conversationID *int64) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, appErr.Validation("message is required")
	}
	logger := logutil.GetLogger(ctx)
	if conversationID != nil {
		logger = logger.With(zap.Int64("conversation_id", *conversationID))
		if _, err := s.conversations.Get(ctx, *conversationID); err != nil {
			return nil, err
		}
	}
	docs, err := s.retrieval.Retrieve(ctx, message, s.cfg.ChatTopK)
	if err != nil {
		return nil, err
	}
	answer, err := s.answers.Synthesize(ctx, message, docs)
	if err != nil {
		return nil, err
	}
	if conversationID != nil {
		if _, err := s.conversations.RecordTurn(ctx, *conversationID, message, answer, docs); err != nil {
			return nil, err
		}
	}
	logger.Info("chat answered", zap.Int("docs", len(docs)))
	return &ChatResult{Message: answer, Docs: docs}, nil
}

// Summarize answers the fixed summary instruction over a broad retrieval and
// stores the result as a summary conversation.
func (s *ChatService) Summarize(ctx context.Context, userID, filename string) (*SummaryResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, appErr.Validation("userId is required")
	}
	docs, err := s.retrieval.Retrieve(ctx, SummaryQuery, s.cfg.SummaryTopK)
	if err != nil {
		return nil, err
	}
	summary, err := s.answers.Synthesize(ctx, SummaryInstruction, docs)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversations.CreateSummary(ctx, userID, filename, summary, docs)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("summary created", zap.Int64("conversation_id", conv.ID), zap.String("user_id", userID), zap.Int("docs", len(docs)))
	return &SummaryResult{Summary: summary, ConversationID: conv.ID, Docs: docs}, nil
}

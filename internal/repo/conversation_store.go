package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
)

// ConversationStore bundles the conversation and message repos and runs
// multi-row writes of a single conversation in one transaction.
type ConversationStore struct {
	db            *sql.DB
	conversations *ConversationRepo
	messages      *MessageRepo
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{
		db:            db,
		conversations: NewConversationRepo(db),
		messages:      NewMessageRepo(db),
	}
}

func (s *ConversationStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	return s.conversations.Create(ctx, conv)
}

func (s *ConversationStore) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	return s.conversations.Get(ctx, id)
}

func (s *ConversationStore) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.conversations.ListNonEmptyByUser(ctx, userID)
}

func (s *ConversationStore) UpdateTitleIfDefault(ctx context.Context, id int64, title string, now int64) (bool, error) {
	return s.conversations.UpdateTitleIfDefault(ctx, id, title, now)
}

func (s *ConversationStore) Touch(ctx context.Context, id int64, now int64) error {
	return s.conversations.Touch(ctx, id, now)
}

func (s *ConversationStore) DeleteConversation(ctx context.Context, id int64) error {
	return s.conversations.Delete(ctx, id)
}

func (s *ConversationStore) AppendMessage(ctx context.Context, msg *model.Message) error {
	return s.messages.Create(ctx, msg)
}

func (s *ConversationStore) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	return s.messages.ListByConversation(ctx, conversationID)
}

// RecordTurn applies retitle, appends msgs in order and touches the
// conversation, all or nothing.
func (s *ConversationStore) RecordTurn(ctx context.Context, conversationID int64, candidateTitle string, msgs []*model.Message, now int64) error {
	return dbutil.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		convs := NewConversationRepo(tx)
		msgRepo := NewMessageRepo(tx)
		if candidateTitle != "" {
			if _, err := convs.UpdateTitleIfDefault(ctx, conversationID, candidateTitle, now); err != nil {
				return err
			}
		}
		for _, msg := range msgs {
			msg.ConversationID = conversationID
			if err := msgRepo.Create(ctx, msg); err != nil {
				return err
			}
		}
		return convs.Touch(ctx, conversationID, now)
	})
}

func (s *ConversationStore) CreateWithMessages(ctx context.Context, conv *model.Conversation, msgs []*model.Message) error {
	return dbutil.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := NewConversationRepo(tx).Create(ctx, conv); err != nil {
			return err
		}
		msgRepo := NewMessageRepo(tx)
		for _, msg := range msgs {
			msg.ConversationID = conv.ID
			if err := msgRepo.Create(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

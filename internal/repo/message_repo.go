package repo

import (
	"context"
	"encoding/json"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
)

type MessageRepo struct {
	db dbutil.Executor
}

func NewMessageRepo(db dbutil.Executor) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Create(ctx context.Context, msg *model.Message) error {
	docs, err := msg.DocumentsJSON()
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO messages (conversation_id, role, content, documents, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		msg.ConversationID,
		string(msg.Role),
		msg.Content,
		docs,
		msg.CreatedAt,
	).Scan(&msg.ID)
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	const query = `
		SELECT id, conversation_id, role, content, documents, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Message, 0)
	for rows.Next() {
		var msg model.Message
		var role string
		var docs []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &docs, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = model.MessageRole(role)
		if len(docs) > 0 {
			if err := json.Unmarshal(docs, &msg.Documents); err != nil {
				return nil, err
			}
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

const conversationColumns = "id, user_id, title, type, created_at, updated_at"

type ConversationRepo struct {
	db dbutil.Executor
}

func NewConversationRepo(db dbutil.Executor) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	const query = `
		INSERT INTO conversations (user_id, title, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		conv.UserID,
		conv.Title,
		string(conv.Type),
		conv.CreatedAt,
		conv.UpdatedAt,
	).Scan(&conv.ID)
}

func (r *ConversationRepo) Get(ctx context.Context, id int64) (*model.Conversation, error) {
	sqlStr, args, err := builder.BuildSelect("conversations", map[string]interface{}{"id": id}, []string{
		"id", "user_id", "title", "type", "created_at", "updated_at",
	})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	conv, err := scanConversation(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

// ListNonEmptyByUser hides conversations that never received a message.
func (r *ConversationRepo) ListNonEmptyByUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	const query = `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.user_id = $1
			AND EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id)
		ORDER BY c.updated_at DESC, c.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *conv)
	}
	return items, rows.Err()
}

// UpdateTitleIfDefault rewrites the title only while it still equals the
// default sentinel. It reports whether a row changed.
func (r *ConversationRepo) UpdateTitleIfDefault(ctx context.Context, id int64, title string, now int64) (bool, error) {
	const query = `
		UPDATE conversations
		SET title = $1, updated_at = $2
		WHERE id = $3 AND title = $4
	`
	res, err := r.db.ExecContext(ctx, query, title, now, id, model.DefaultConversationTitle)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *ConversationRepo) Touch(ctx context.Context, id int64, now int64) error {
	sqlStr, args, err := builder.BuildUpdate("conversations", map[string]interface{}{"id": id}, map[string]interface{}{
		"updated_at": now,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// Delete removes the conversation; messages go with it via ON DELETE CASCADE.
func (r *ConversationRepo) Delete(ctx context.Context, id int64) error {
	sqlStr, args, err := builder.BuildDelete("conversations", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var conv model.Conversation
	var convType string
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &convType, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	conv.Type = model.ConversationType(convType)
	return &conv, nil
}

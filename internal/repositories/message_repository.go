package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chatify-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for conversation messages.
// The displayed text of a row is only ever rewritten by the translation
// pipeline (finalize or fallback) or the variant cycler; message_og is
// immutable after the placeholder insert.
type MessageRepository interface {
	AppendPlaceholder(ctx context.Context, msg models.Message) (models.Message, error)
	FinalizeTranslation(ctx context.Context, messageID string, variants [models.VariantCount]string) error
	FallbackToOriginal(ctx context.Context, messageID string) error
	SetDisplayedVariant(ctx context.Context, messageID string, index int, text string) error
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	ListMessagesForUser(ctx context.Context, userID string) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `message_id, conversation_id, sender_id, message, message_og, message_var1, message_var2, message_var3, displayed_variant, "read", reply_to_id, reply_to_message, reply_to_sender, created_at`

// AppendPlaceholder inserts the optimistic placeholder row and returns
// it with the server-assigned timestamp.
func (r *MessageRepo) AppendPlaceholder(ctx context.Context, msg models.Message) (models.Message, error) {
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (message_id, conversation_id, sender_id, message, message_og, reply_to_id, reply_to_message, reply_to_sender)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		msg.MessageID, msg.ConversationID, msg.SenderID, msg.Message, msg.MessageOG, msg.ReplyToID, msg.ReplyToMessage, msg.ReplyToSender).
		Scan(&msg.CreatedAt)
	return msg, err
}

// FinalizeTranslation stores the parsed variants and displays the first.
func (r *MessageRepo) FinalizeTranslation(ctx context.Context, messageID string, variants [models.VariantCount]string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages
        SET message=$2, message_var1=$2, message_var2=$3, message_var3=$4, displayed_variant=0
        WHERE message_id=$1`,
		messageID, variants[0], variants[1], variants[2])
	return checkAffected(res, err)
}

// FallbackToOriginal reverts the displayed text to message_og after a
// translation failure, leaving the variant slots empty.
func (r *MessageRepo) FallbackToOriginal(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages
        SET message=message_og, message_var1='', message_var2='', message_var3='', displayed_variant=0
        WHERE message_id=$1`, messageID)
	return checkAffected(res, err)
}

// SetDisplayedVariant points the displayed text at a variant slot.
func (r *MessageRepo) SetDisplayedVariant(ctx context.Context, messageID string, index int, text string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET message=$2, displayed_variant=$3 WHERE message_id=$1`,
		messageID, text, index)
	return checkAffected(res, err)
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE message_id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListConversationMessages returns the full conversation ordered by
// server timestamp.
func (r *MessageRepo) ListConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1 ORDER BY created_at ASC`, conversationID)
	return msgs, err
}

// ListMessagesForUser returns every message in every conversation the
// user participates in, for sidebar aggregation.
func (r *MessageRepo) ListMessagesForUser(ctx context.Context, userID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE split_part(conversation_id, '_', 1)=$1 OR split_part(conversation_id, '_', 2)=$1
        ORDER BY created_at ASC`, userID)
	return msgs, err
}

// MarkConversationRead flags every unread message from the other party
// as read. Idempotent: re-running affects zero rows.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET "read"=TRUE
        WHERE conversation_id=$1 AND sender_id<>$2 AND "read"=FALSE`,
		conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

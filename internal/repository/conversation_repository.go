package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/skillswap-api/internal/models"
)

// ConversationRepository persists direct message threads.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository constructs the repository.
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// FindDirect returns the two-party conversation between userA and userB.
func (r *ConversationRepository) FindDirect(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	const query = `SELECT c.id, c.created_at, c.updated_at FROM conversations c
        WHERE EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.user_id = $1)
        AND EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.user_id = $2)
        AND (SELECT COUNT(*) FROM conversation_participants p WHERE p.conversation_id = c.id) = 2
        ORDER BY c.created_at ASC LIMIT 1`
	var conv models.Conversation
	if err := executor(ctx, r.db).GetContext(ctx, &conv, query, userA, userB); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Create inserts a conversation and its participants.
func (r *ConversationRepository) Create(ctx context.Context, conv *models.Conversation, participants ...string) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	q := executor(ctx, r.db)
	if _, err := q.ExecContext(ctx, "INSERT INTO conversations (id, created_at, updated_at) VALUES ($1, $2, $2)", conv.ID, now); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	for _, userID := range participants {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", conv.ID, userID); err != nil {
			return fmt.Errorf("add conversation participant: %w", err)
		}
	}
	return nil
}

// AddMessage appends a message and bumps the conversation's activity timestamp.
func (r *ConversationRepository) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	q := executor(ctx, r.db)
	const insert = `INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
        VALUES (:id, :conversation_id, :sender_id, :content, :created_at)`
	if _, err := q.NamedExecContext(ctx, insert, msg); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	if _, err := q.ExecContext(ctx, "UPDATE conversations SET updated_at = $2 WHERE id = $1", msg.ConversationID, msg.CreatedAt); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

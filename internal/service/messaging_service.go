package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

type conversationRepository interface {
	FindDirect(ctx context.Context, userA, userB string) (*models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation, participants ...string) error
	AddMessage(ctx context.Context, msg *models.Message) error
}

// MessagingService writes direct messages between two users.
type MessagingService struct {
	tx     txRunner
	repo   conversationRepository
	logger *zap.Logger
}

// NewMessagingService constructs a MessagingService.
func NewMessagingService(tx txRunner, repo conversationRepository, logger *zap.Logger) *MessagingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagingService{tx: tx, repo: repo, logger: logger}
}

// SendDirect appends a message to the sender/recipient thread, opening it when needed.
func (s *MessagingService) SendDirect(ctx context.Context, senderID, recipientID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message content is required")
	}
	if senderID == recipientID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot message yourself")
	}
	var msg *models.Message
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		conv, err := s.repo.FindDirect(ctx, senderID, recipientID)
		if errors.Is(err, sql.ErrNoRows) {
			conv = &models.Conversation{}
			if err := s.repo.Create(ctx, conv, senderID, recipientID); err != nil {
				return internalError(err, "failed to open conversation")
			}
		} else if err != nil {
			return internalError(err, "failed to load conversation")
		}
		msg = &models.Message{ConversationID: conv.ID, SenderID: senderID, Content: content}
		if err := s.repo.AddMessage(ctx, msg); err != nil {
			return internalError(err, "failed to store message")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("direct message stored",
		zap.String("conversation_id", msg.ConversationID),
		zap.String("sender_id", senderID),
		zap.String("recipient_id", recipientID))
	return msg, nil
}

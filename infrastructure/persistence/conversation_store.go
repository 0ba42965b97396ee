package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/personalrag/ragengine/domain/conversation"
	"github.com/personalrag/ragengine/domain/repository"
	"github.com/personalrag/ragengine/internal/database"
)

// conversationTurnModel is the GORM row shape for conversation_turns (spec §3).
type conversationTurnModel struct {
	ID             string    `gorm:"column:id;primaryKey"`
	ConversationID string    `gorm:"column:conversation_id;index"`
	UserID         string    `gorm:"column:user_id;index"`
	Query          string    `gorm:"column:query"`
	Answer         string    `gorm:"column:answer"`
	Intent         string    `gorm:"column:intent"`
	DocumentsUsed  int       `gorm:"column:documents_used"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (conversationTurnModel) TableName() string { return "conversation_turns" }

type conversationTurnMapper struct{}

func (conversationTurnMapper) ToDomain(e conversationTurnModel) conversation.Turn {
	return conversation.Turn{
		ID:             e.ID,
		ConversationID: e.ConversationID,
		UserID:         e.UserID,
		Query:          e.Query,
		Answer:         e.Answer,
		Intent:         e.Intent,
		DocumentsUsed:  e.DocumentsUsed,
		CreatedAt:      e.CreatedAt,
	}
}

func (conversationTurnMapper) ToModel(d conversation.Turn) conversationTurnModel {
	return conversationTurnModel{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		UserID:         d.UserID,
		Query:          d.Query,
		Answer:         d.Answer,
		Intent:         d.Intent,
		DocumentsUsed:  d.DocumentsUsed,
		CreatedAt:      d.CreatedAt,
	}
}

// ConversationStore implements conversation.Store.
type ConversationStore struct {
	repo database.Repository[conversation.Turn, conversationTurnModel]
}

// NewConversationStore constructs a ConversationStore, migrating its table.
func NewConversationStore(db database.Database) (*ConversationStore, error) {
	if err := db.GORM().AutoMigrate(&conversationTurnModel{}); err != nil {
		return nil, fmt.Errorf("migrate conversation_turns table: %w", err)
	}
	return &ConversationStore{repo: database.NewRepository[conversation.Turn, conversationTurnModel](db, conversationTurnMapper{}, "conversation_turn")}, nil
}

// Save appends one turn.
func (s *ConversationStore) Save(ctx context.Context, turn conversation.Turn) error {
	model := conversationTurnMapper{}.ToModel(turn)
	if err := s.repo.DB(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("save conversation turn %s: %w", turn.ID, err)
	}
	return nil
}

// FindByConversation returns the most recent turns for conversationID,
// oldest first, capped at limit.
func (s *ConversationStore) FindByConversation(ctx context.Context, conversationID string, limit int) ([]conversation.Turn, error) {
	turns, err := s.repo.Find(ctx,
		repository.WithCondition("conversation_id", conversationID),
		repository.WithOrderDesc("created_at"),
		repository.WithLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

var _ conversation.Store = (*ConversationStore)(nil)

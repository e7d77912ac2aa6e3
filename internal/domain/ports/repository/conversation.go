package repository

import (
	"context"

	"ai-answering-machine/internal/domain/model"
)

// -----------------------------
// Conversations
// -----------------------------

type ConversationRepository interface {
	Create(ctx context.Context, taskID string, content []model.ChatMessage) (uint, error)
	Update(ctx context.Context, taskID string, content []model.ChatMessage) error
	GetByTaskID(ctx context.Context, taskID string) (*model.Conversation, error)
	SoftDelete(ctx context.Context, taskID string) error
	// Upsert updates the active conversation of taskID or creates one.
	Upsert(ctx context.Context, taskID string, content []model.ChatMessage) error
	// Clear upserts an empty content; the record is kept.
	Clear(ctx context.Context, taskID string) error
	Scan(ctx context.Context) ([]model.Conversation, error)
	Subscribe() (<-chan struct{}, func())
}

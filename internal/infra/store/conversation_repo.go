package store

import (
	"context"
	"errors"

	"gorm.io/datatypes"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/repository"
	"ai-answering-machine/internal/live"
)

var _ repository.ConversationRepository = (*ConversationRepo)(nil)

type ConversationRepo struct {
	rows *Repository[conversationRow, *conversationRow]
}

func NewConversationRepo(s *Store) *ConversationRepo {
	return &ConversationRepo{rows: newRepository[conversationRow](s, live.Conversations)}
}

func (r *ConversationRepo) Create(ctx context.Context, taskID string, content []model.ChatMessage) (uint, error) {
	return r.rows.Create(ctx, &conversationRow{TaskID: taskID, Content: jsonContent(content)})
}

func (r *ConversationRepo) Update(ctx context.Context, taskID string, content []model.ChatMessage) error {
	return r.rows.UpdateByKey(ctx, taskID, map[string]any{"content": jsonContent(content)})
}

func (r *ConversationRepo) GetByTaskID(ctx context.Context, taskID string) (*model.Conversation, error) {
	row, err := r.rows.FindByKey(ctx, taskID)
	if err != nil {
		return nil, err
	}
	c := row.toModel()
	return &c, nil
}

func (r *ConversationRepo) SoftDelete(ctx context.Context, taskID string) error {
	return r.rows.SoftDeleteByKey(ctx, taskID)
}

// Upsert rewrites the active conversation of taskID, creating it when none
// exists. The lookup and the write are not atomic; a single writer per task
// is assumed.
func (r *ConversationRepo) Upsert(ctx context.Context, taskID string, content []model.ChatMessage) error {
	_, err := r.rows.FindByKey(ctx, taskID)
	switch {
	case err == nil:
		return r.Update(ctx, taskID, content)
	case errors.Is(err, domain.ErrNotFound):
		_, err = r.Create(ctx, taskID, content)
		return err
	default:
		return err
	}
}

func (r *ConversationRepo) Clear(ctx context.Context, taskID string) error {
	return r.Upsert(ctx, taskID, []model.ChatMessage{})
}

func (r *ConversationRepo) Scan(ctx context.Context) ([]model.Conversation, error) {
	rows, err := r.rows.Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (r *ConversationRepo) Subscribe() (<-chan struct{}, func()) {
	return r.rows.Subscribe()
}

func jsonContent(content []model.ChatMessage) datatypes.JSONSlice[model.ChatMessage] {
	if content == nil {
		content = []model.ChatMessage{}
	}
	return datatypes.JSONSlice[model.ChatMessage](content)
}

package repository

import (
	"context"

	"ai-answering-machine/internal/domain/model"
)

// -----------------------------
// Tasks
// -----------------------------

// TaskRepository reads and writes tasks. Reads never return soft-deleted
// rows except Scan. Update and SoftDelete on an unknown key are no-ops.
type TaskRepository interface {
	Create(ctx context.Context, task *model.Task) (uint, error)
	Update(ctx context.Context, taskID string, upd model.TaskUpdate) error
	GetByTaskID(ctx context.Context, taskID string) (*model.Task, error)
	SoftDelete(ctx context.Context, taskID string) error
	// ListAll returns non-deleted tasks, newest first.
	ListAll(ctx context.Context) ([]model.Task, error)
	// Scan returns every stored row, deleted or not.
	Scan(ctx context.Context) ([]model.Task, error)
	// Subscribe signals after every mutation of the collection.
	Subscribe() (<-chan struct{}, func())
}

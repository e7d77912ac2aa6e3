package application

import (
	"context"

	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/usecase"
)

// ---- small interfaces to decouple the facade from concrete usecase structs ----
// These describe the minimal surface that the facade needs.

type TaskReader interface {
	Get(ctx context.Context, taskID string) (*model.Task, error)
}

type AnswerOpener interface {
	Open(ctx context.Context, taskID string) (usecase.AnswerState, error)
}

type RecordSearcher interface {
	SearchRecords(ctx context.Context, filter model.TaskFilter) []model.Task
}

type ChatHistory interface {
	History(ctx context.Context, taskID string) []model.ChatMessage
	Ask(ctx context.Context, task *model.Task, history []model.ChatMessage, message string) ([]model.ChatMessage, error)
}

package store

import (
	"context"

	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/repository"
	"ai-answering-machine/internal/live"
)

var _ repository.TaskRepository = (*TaskRepo)(nil)

type TaskRepo struct {
	rows *Repository[taskRow, *taskRow]
}

func NewTaskRepo(s *Store) *TaskRepo {
	return &TaskRepo{rows: newRepository[taskRow](s, live.Tasks)}
}

// Create inserts task with createdAt = updatedAt = now and isDeleted false.
// The stored timestamps and row id are written back into task.
func (r *TaskRepo) Create(ctx context.Context, task *model.Task) (uint, error) {
	row := taskRowFrom(task)
	id, err := r.rows.Create(ctx, row)
	if err != nil {
		return 0, err
	}
	task.ID = id
	task.CreatedAt = row.CreatedAt
	task.UpdatedAt = row.UpdatedAt
	task.IsDeleted = false
	return id, nil
}

func (r *TaskRepo) Update(ctx context.Context, taskID string, upd model.TaskUpdate) error {
	fields := map[string]any{}
	if upd.Status != nil {
		fields["status"] = string(*upd.Status)
	}
	if upd.TextExplanation != nil {
		fields["text_explanation"] = *upd.TextExplanation
	}
	if upd.ImageURL != nil {
		fields["image_url"] = *upd.ImageURL
	}
	if upd.Answer != nil {
		fields["answer"] = *upd.Answer
	}
	if upd.SearchText != nil {
		fields["search_text"] = *upd.SearchText
	}
	return r.rows.UpdateByKey(ctx, taskID, fields)
}

func (r *TaskRepo) GetByTaskID(ctx context.Context, taskID string) (*model.Task, error) {
	row, err := r.rows.FindByKey(ctx, taskID)
	if err != nil {
		return nil, err
	}
	t := row.toModel()
	return &t, nil
}

func (r *TaskRepo) SoftDelete(ctx context.Context, taskID string) error {
	return r.rows.SoftDeleteByKey(ctx, taskID)
}

func (r *TaskRepo) ListAll(ctx context.Context) ([]model.Task, error) {
	rows, err := r.rows.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return tasksFromRows(rows), nil
}

func (r *TaskRepo) Scan(ctx context.Context) ([]model.Task, error) {
	rows, err := r.rows.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tasksFromRows(rows), nil
}

func (r *TaskRepo) Subscribe() (<-chan struct{}, func()) {
	return r.rows.Subscribe()
}

func tasksFromRows(rows []taskRow) []model.Task {
	out := make([]model.Task, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}

// File: internal/usecase/task_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/adapter"
	"ai-answering-machine/internal/domain/ports/repository"
)

// Compile-time check
var _ TaskUseCase = (*taskUC)(nil)

// TaskUseCase commits drafts into stored tasks.
type TaskUseCase interface {
	// SubmitDraft validates the current draft and stores it as a pending task.
	SubmitDraft(ctx context.Context) (*model.Task, error)
	// SubmitImage starts an image composition, optionally crops and uploads
	// data, and stores the resulting pending task.
	SubmitImage(ctx context.Context, name string, data []byte, crop *model.CropRect) (*model.Task, error)
	Get(ctx context.Context, taskID string) (*model.Task, error)
	// Delete soft-deletes the task and its conversation.
	Delete(ctx context.Context, taskID string) error
}

type taskUC struct {
	tasks    repository.TaskRepository
	convs    repository.ConversationRepository
	drafts   DraftUseCase
	uploader adapter.Uploader
	cropper  adapter.ImageCropper
	log      *zerolog.Logger
}

func NewTaskUseCase(
	tasks repository.TaskRepository,
	convs repository.ConversationRepository,
	drafts DraftUseCase,
	uploader adapter.Uploader,
	cropper adapter.ImageCropper,
	logger *zerolog.Logger,
) *taskUC {
	return &taskUC{tasks: tasks, convs: convs, drafts: drafts, uploader: uploader, cropper: cropper, log: logger}
}

func (t *taskUC) SubmitDraft(ctx context.Context) (*model.Task, error) {
	d, err := t.drafts.Get(ctx)
	if err != nil {
		return nil, err
	}
	return t.commit(ctx, d)
}

func (t *taskUC) SubmitImage(ctx context.Context, name string, data []byte, crop *model.CropRect) (*model.Task, error) {
	if _, err := t.drafts.Begin(ctx, model.TaskTypeImage); err != nil {
		return nil, err
	}
	if crop != nil {
		if t.cropper == nil {
			return nil, fmt.Errorf("%w: cropping is not available", domain.ErrInvalidArgument)
		}
		cropped, err := t.cropper.Crop(data, *crop)
		if err != nil {
			return nil, err
		}
		data = cropped
	}

	url, err := t.uploader.Upload(ctx, name, data)
	if err != nil {
		if _, rerr := t.drafts.SetField(ctx, model.DraftImageURL, ""); rerr != nil {
			t.log.Error().Err(rerr).Msg("reset draft image after failed upload")
		}
		t.log.Error().Err(err).Str("file", name).Msg("image upload failed")
		if errors.Is(err, domain.ErrUploadFailed) || errors.Is(err, domain.ErrUnsupportedImage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	t.log.Info().Str("image_url", url).Msg("uploaded image")

	d, err := t.drafts.SetField(ctx, model.DraftImageURL, url)
	if err != nil {
		return nil, err
	}
	return t.commit(ctx, d)
}

func (t *taskUC) commit(ctx context.Context, d *model.Draft) (*model.Task, error) {
	if err := model.ValidateDraft(d); err != nil {
		t.log.Debug().Err(err).Str("task_id", d.TaskID).Msg("draft rejected")
		return nil, err
	}
	if _, err := t.tasks.GetByTaskID(ctx, d.TaskID); err == nil {
		return nil, fmt.Errorf("%w: task %s", domain.ErrAlreadyExists, d.TaskID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	task := d.Task()
	if _, err := t.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	t.log.Info().Str("task_id", task.TaskID).Str("task_type", string(task.Type)).Msg("task created")
	return task, nil
}

func (t *taskUC) Get(ctx context.Context, taskID string) (*model.Task, error) {
	return t.tasks.GetByTaskID(ctx, taskID)
}

func (t *taskUC) Delete(ctx context.Context, taskID string) error {
	if _, err := t.tasks.GetByTaskID(ctx, taskID); err != nil {
		return err
	}
	if err := t.tasks.SoftDelete(ctx, taskID); err != nil {
		return err
	}
	// no cross-collection transaction: a failure here leaves an orphaned
	// conversation that is unreachable without its task
	if err := t.convs.SoftDelete(ctx, taskID); err != nil {
		t.log.Warn().Err(err).Str("task_id", taskID).Msg("soft delete conversation")
	}
	return nil
}

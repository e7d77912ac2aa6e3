// File: internal/usecase/draft_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/repository"
	"ai-answering-machine/internal/infra/metrics"
)

// Compile-time check
var _ DraftUseCase = (*draftUC)(nil)

// DraftUseCase owns the single in-progress task bound to the composing form.
// Every mutation re-persists the whole draft; nothing is validated here.
type DraftUseCase interface {
	Get(ctx context.Context) (*model.Draft, error)
	SetField(ctx context.Context, field model.DraftField, value string) (*model.Draft, error)
	// Begin starts a new composition flow of the given type with a new id.
	Begin(ctx context.Context, taskType model.TaskType) (*model.Draft, error)
	Reset(ctx context.Context) (*model.Draft, error)
	// RecordAnswer copies a finished answer into the draft if it still
	// refers to taskID.
	RecordAnswer(ctx context.Context, taskID, answer string) error
}

type draftUC struct {
	mu    sync.Mutex
	kv    repository.KeyValue
	newID func() string
	log   *zerolog.Logger
}

func NewDraftUseCase(kv repository.KeyValue, logger *zerolog.Logger) *draftUC {
	return &draftUC{kv: kv, newID: uuid.NewString, log: logger}
}

func (d *draftUC) Get(ctx context.Context) (*model.Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load(ctx)
}

func (d *draftUC) SetField(ctx context.Context, field model.DraftField, value string) (*model.Draft, error) {
	return d.mutate(ctx, func(dr *model.Draft) error { return dr.Set(field, value) })
}

func (d *draftUC) Begin(ctx context.Context, taskType model.TaskType) (*model.Draft, error) {
	if !taskType.Valid() {
		return nil, fmt.Errorf("%w: task type %q", domain.ErrInvalidArgument, taskType)
	}
	return d.mutate(ctx, func(dr *model.Draft) error {
		*dr = *model.NewDraft(d.newID())
		dr.Type = taskType
		return nil
	})
}

func (d *draftUC) Reset(ctx context.Context) (*model.Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr := model.NewDraft(d.newID())
	if err := d.save(ctx, dr); err != nil {
		return nil, err
	}
	return dr, nil
}

func (d *draftUC) RecordAnswer(ctx context.Context, taskID, answer string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, err := d.load(ctx)
	if err != nil {
		return err
	}
	if dr.TaskID != taskID {
		return nil
	}
	dr.Answer = answer
	return d.save(ctx, dr)
}

func (d *draftUC) mutate(ctx context.Context, fn func(*model.Draft) error) (*model.Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(dr); err != nil {
		return nil, err
	}
	if err := d.save(ctx, dr); err != nil {
		return nil, err
	}
	return dr, nil
}

// load returns the persisted draft or persists and returns a fresh default.
// Caller holds d.mu.
func (d *draftUC) load(ctx context.Context) (*model.Draft, error) {
	raw, err := d.kv.Get(ctx, model.DraftKey)
	switch {
	case err == nil:
		var dr model.Draft
		jerr := json.Unmarshal([]byte(raw), &dr)
		if jerr == nil && dr.TaskID != "" {
			metrics.IncDraftLoad("hit")
			return &dr, nil
		}
		metrics.IncDraftLoad("corrupt")
		d.log.Warn().Err(jerr).Msg("discarding unreadable draft")
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncDraftLoad("miss")
	default:
		return nil, fmt.Errorf("load draft: %w", err)
	}
	dr := model.NewDraft(d.newID())
	if err := d.save(ctx, dr); err != nil {
		return nil, err
	}
	return dr, nil
}

func (d *draftUC) save(ctx context.Context, dr *model.Draft) error {
	b, err := json.Marshal(dr)
	if err != nil {
		return err
	}
	if err := d.kv.Set(ctx, model.DraftKey, string(b)); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// File: internal/usecase/generation.go
package usecase

import (
	"context"
	"errors"
	"iter"

	"github.com/rs/zerolog"

	"ai-answering-machine/internal/domain/ports/adapter"
	"ai-answering-machine/internal/infra/logging"
)

// GenerationOptions are the model credentials and names used by every run.
// An empty APIKey turns generation into a no-op.
type GenerationOptions struct {
	APIKey   string
	Model    string
	OCRModel string
}

func (o GenerationOptions) ocrModel() string {
	if o.OCRModel != "" {
		return o.OCRModel
	}
	return o.Model
}

// Localizer supplies the localized system prompt and provider error texts.
type Localizer interface {
	SystemPrompt() string
	ErrorMessage(code int) string
}

// Runner executes background work; worker.Pool satisfies it.
type Runner interface {
	Submit(task func(ctx context.Context) error) error
}

// consumeStream feeds every delta of seq to onDelta; first is true exactly
// once, for the first delta.
func consumeStream(seq iter.Seq2[string, error], onDelta func(delta string, first bool)) error {
	first := true
	for delta, err := range seq {
		if err != nil {
			return err
		}
		onDelta(delta, first)
		first = false
	}
	return nil
}

// providerNotice builds the user facing notice for err. Only errors that
// carry a provider error code produce one.
func providerNotice(taskID string, err error, loc Localizer) *adapter.Notice {
	code, ok := adapter.ErrorCode(err)
	if !ok {
		return nil
	}
	n := &adapter.Notice{TaskID: taskID, Code: code}
	if loc != nil {
		n.Message = loc.ErrorMessage(code)
	}
	return n
}

// reportFailure logs err, and notifies when a notice exists.
func reportFailure(ctx context.Context, log *zerolog.Logger, notifier adapter.Notifier, n *adapter.Notice, taskID, what string, err error) {
	ev := logging.With(logging.WithTaskID(ctx, taskID), log).Error().Err(err)
	var perr *adapter.ProviderError
	if errors.As(err, &perr) {
		ev = ev.Str("provider", perr.Provider).Int("status", perr.StatusCode).Int("err_code", perr.ErrCode)
	}
	ev.Msg(what + " failed")
	if n != nil && notifier != nil {
		notifier.Notify(ctx, *n)
	}
}

package ai

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-answering-machine/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev runs
// without a gateway. It echoes the last user turn back word by word.
type NoopAIAdapter struct {
	delay time.Duration
	log   *zerolog.Logger
}

func NewNoopAIAdapter(delay time.Duration, log *zerolog.Logger) *NoopAIAdapter {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &NoopAIAdapter{delay: delay, log: log}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-ai-model"}, nil
}

func (a *NoopAIAdapter) Stream(ctx context.Context, req adapter.GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		question := ""
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == "user" {
				question = req.Messages[i].Content.Flatten()
				break
			}
		}
		a.log.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Msg("[noop-ai] stream")
		for i, w := range strings.Fields("You asked: " + question) {
			select {
			case <-time.After(a.delay):
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
			if i > 0 {
				w = " " + w
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}

func (a *NoopAIAdapter) Analyze(ctx context.Context, req adapter.AnalyzeRequest) (adapter.ImageAnalysis, error) {
	a.log.Debug().Str("image", req.ImageURL).Msg("[noop-ai] analyze")
	return adapter.ImageAnalysis{Text: "image " + req.ImageURL, Model: "noop-ai-model"}, nil
}

package ai

import (
	"context"
	"iter"

	"ai-answering-machine/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

type limitedAI struct {
	inner adapter.AIServiceAdapter
	sem   chan struct{}
}

// NewLimitedAI bounds the number of in-flight model calls. A stream holds
// its slot until it is fully consumed or abandoned.
func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedAI) release() { <-l.sem }

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAI) Stream(ctx context.Context, req adapter.GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := l.acquire(ctx); err != nil {
			yield("", err)
			return
		}
		defer l.release()
		for delta, err := range l.inner.Stream(ctx, req) {
			if !yield(delta, err) {
				return
			}
		}
	}
}

func (l *limitedAI) Analyze(ctx context.Context, req adapter.AnalyzeRequest) (adapter.ImageAnalysis, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.ImageAnalysis{}, err
	}
	defer l.release()
	return l.inner.Analyze(ctx, req)
}

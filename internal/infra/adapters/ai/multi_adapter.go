// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"errors"
	"iter"
	"maps"
	"slices"
	"strings"

	"ai-answering-machine/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

var errNoProvider = errors.New("ai: no provider configured for model")

// MultiAIAdapter routes each call to a provider by model name. Exact entries
// in modelToProvider win over name prefixes; unknown names go to the
// default provider.
type MultiAIAdapter struct {
	defaultProvider string
	byProvider      map[string]adapter.AIServiceAdapter
	modelToProvider map[string]string
}

func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.AIServiceAdapter,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	routes := make(map[string]string, len(modelToProvider))
	for m, p := range modelToProvider {
		routes[m] = strings.ToLower(p)
	}
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: routes,
	}
}

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return p
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return providerGemini
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "chatgpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return providerOpenAI
	default:
		return m.defaultProvider
	}
}

// pick returns the adapter for model and the model name to send it. When
// the call falls back to a provider that does not own the model family the
// name is cleared, so the provider uses its own default model.
func (m *MultiAIAdapter) pick(model string) (adapter.AIServiceAdapter, string) {
	want := m.resolveProvider(model)
	if a := m.byProvider[want]; a != nil {
		return a, model
	}
	fallback := m.defaultProvider
	if m.byProvider[fallback] == nil {
		fallback = ""
		for _, name := range slices.Sorted(maps.Keys(m.byProvider)) {
			if m.byProvider[name] != nil {
				fallback = name
				break
			}
		}
	}
	if fallback == "" {
		return nil, ""
	}
	// the OpenAI-compatible gateway proxies most model families
	if fallback == providerOpenAI {
		return m.byProvider[fallback], model
	}
	return m.byProvider[fallback], ""
}

// ListModels returns the mapped models plus every provider's own list,
// sorted and without duplicates. Provider errors are skipped.
func (m *MultiAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	set := make(map[string]struct{}, len(m.modelToProvider)+4)
	for model := range m.modelToProvider {
		set[model] = struct{}{}
	}
	for _, a := range m.byProvider {
		if a == nil {
			continue
		}
		list, _ := a.ListModels(ctx)
		for _, name := range list {
			if name != "" {
				set[name] = struct{}{}
			}
		}
	}
	return slices.Sorted(maps.Keys(set)), nil
}

func (m *MultiAIAdapter) Stream(ctx context.Context, req adapter.GenerateRequest) iter.Seq2[string, error] {
	a, model := m.pick(req.Model)
	if a == nil {
		return func(yield func(string, error) bool) { yield("", errNoProvider) }
	}
	req.Model = model
	return a.Stream(ctx, req)
}

func (m *MultiAIAdapter) Analyze(ctx context.Context, req adapter.AnalyzeRequest) (adapter.ImageAnalysis, error) {
	a, model := m.pick(req.Model)
	if a == nil {
		return adapter.ImageAnalysis{}, errNoProvider
	}
	req.Model = model
	return a.Analyze(ctx, req)
}

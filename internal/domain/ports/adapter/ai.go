package adapter

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"ai-answering-machine/internal/domain/model"
)

// GenerateRequest is one streamed completion. Messages never contain the
// system prompt; providers place SystemPrompt where their API expects it.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	APIKey       string
	Messages     []model.ChatMessage
}

// AnalyzeRequest asks for the text content of an uploaded image.
type AnalyzeRequest struct {
	ImageURL string
	Model    string
	APIKey   string
}

// Usage for a single call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ImageAnalysis is the OCR/description result. Only Text matters to callers.
type ImageAnalysis struct {
	Text  string
	Model string
	Usage Usage
}

// Generator streams text deltas. The sequence is lazy: the request is sent
// when iteration starts, and a failure is yielded as the last element.
type Generator interface {
	Stream(ctx context.Context, req GenerateRequest) iter.Seq2[string, error]
}

// Analyzer extracts the text content of an image.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (ImageAnalysis, error)
}

// AIServiceAdapter is the port for a model provider.
type AIServiceAdapter interface {
	Generator
	Analyzer
	ListModels(ctx context.Context) ([]string, error)
}

// ProviderError is a failure reported by the model provider. ErrCode is the
// provider specific code found under {"error": {"err_code": N}}, 0 if absent.
type ProviderError struct {
	Provider   string
	StatusCode int
	ErrCode    int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.ErrCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: err_code %d: %s", e.Provider, e.StatusCode, e.ErrCode, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrorCode returns the structured provider code carried by err, if any.
func ErrorCode(err error) (int, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.ErrCode != 0 {
		return pe.ErrCode, true
	}
	return 0, false
}

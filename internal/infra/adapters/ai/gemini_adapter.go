// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/adapter"
	"ai-answering-machine/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

const providerGemini = "gemini"

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	ocrPrompt    string
	images       adapter.ImageResolver
	httpClient   *http.Client
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK. The
// key is fixed at construction; a request's APIKey is ignored.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel, ocrPrompt string, images adapter.ImageResolver) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GeminiAdapter{
		client:       c,
		defaultModel: defaultModel,
		ocrPrompt:    ocrPrompt,
		images:       images,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			break
		}
		if m.Name != "" {
			out = append(out, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	if len(out) == 0 && g.defaultModel != "" {
		out = []string{g.defaultModel}
	}
	return out, nil
}

func (g *GeminiAdapter) Stream(ctx context.Context, req adapter.GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		mdl := modelOrDefault(req.Model, g.defaultModel)
		contents, err := g.toContents(ctx, req.Messages)
		if err != nil {
			yield("", err)
			return
		}
		var cfg *genai.GenerateContentConfig
		if req.SystemPrompt != "" {
			cfg = &genai.GenerateContentConfig{
				SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}},
			}
		}

		start := time.Now()
		var u adapter.Usage
		for resp, err := range g.client.Models.GenerateContentStream(ctx, mdl, contents, cfg) {
			if err != nil {
				metrics.ObserveAICall(providerGemini, mdl, "stream", u.PromptTokens, u.CompletionTokens, time.Since(start), false)
				yield("", wrapGeminiErr(err))
				return
			}
			if resp.UsageMetadata != nil {
				u = usageFrom(resp.UsageMetadata)
			}
			delta := resp.Text()
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				break
			}
		}
		metrics.ObserveAICall(providerGemini, mdl, "stream", u.PromptTokens, u.CompletionTokens, time.Since(start), true)
	}
}

func (g *GeminiAdapter) Analyze(ctx context.Context, req adapter.AnalyzeRequest) (adapter.ImageAnalysis, error) {
	mdl := modelOrDefault(req.Model, g.defaultModel)
	img, err := g.imagePart(ctx, req.ImageURL)
	if err != nil {
		return adapter.ImageAnalysis{}, err
	}
	contents := []*genai.Content{{
		Role:  string(genai.RoleUser),
		Parts: []*genai.Part{{Text: g.ocrPrompt}, img},
	}}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, mdl, contents, nil)
	if err != nil {
		metrics.ObserveAICall(providerGemini, mdl, "ocr", 0, 0, time.Since(start), false)
		return adapter.ImageAnalysis{}, wrapGeminiErr(err)
	}
	var u adapter.Usage
	if resp.UsageMetadata != nil {
		u = usageFrom(resp.UsageMetadata)
	}
	metrics.ObserveAICall(providerGemini, mdl, "ocr", u.PromptTokens, u.CompletionTokens, time.Since(start), true)
	return adapter.ImageAnalysis{Text: resp.Text(), Model: mdl, Usage: u}, nil
}

// --- internal ---

func (g *GeminiAdapter) toContents(ctx context.Context, msgs []model.ChatMessage) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		// Gemini has no system role in history; treat it as a user instruction.
		role := string(genai.RoleUser)
		if m.Role == model.RoleAssistant {
			role = string(genai.RoleModel)
		}
		if !m.Content.IsParts() {
			// the API rejects empty text parts, e.g. a pending assistant turn
			if m.Content.Text() == "" {
				continue
			}
			out = append(out, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content.Text()}}})
			continue
		}
		parts := make([]*genai.Part, 0, len(m.Content.Parts()))
		for _, p := range m.Content.Parts() {
			if p.Type == model.PartImage {
				img, err := g.imagePart(ctx, p.Image)
				if err != nil {
					return nil, err
				}
				parts = append(parts, img)
				continue
			}
			parts = append(parts, &genai.Part{Text: p.Text})
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out, nil
}

// imagePart inlines the image bytes; the Gemini API only dereferences its
// own file URIs.
func (g *GeminiAdapter) imagePart(ctx context.Context, u string) (*genai.Part, error) {
	if g.images != nil {
		data, mime, ok, err := g.images.Resolve(u)
		if err != nil {
			return nil, err
		}
		if ok {
			return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mime}}, nil
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: image url: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini: fetch image: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("gemini: read image: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mime}}, nil
}

func usageFrom(m *genai.GenerateContentResponseUsageMetadata) adapter.Usage {
	return adapter.Usage{
		PromptTokens:     int(m.PromptTokenCount),
		CompletionTokens: int(m.CandidatesTokenCount),
		TotalTokens:      int(m.TotalTokenCount),
	}
}

func wrapGeminiErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		pe := &adapter.ProviderError{
			Provider:   providerGemini,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Err:        err,
		}
		metrics.IncProviderError(providerGemini, 0)
		return pe
	}
	return err
}

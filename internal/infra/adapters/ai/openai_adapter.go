package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"

	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/adapter"
	"ai-answering-machine/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

const providerOpenAI = "openai"

// OpenAIAdapter talks to any OpenAI-compatible Chat Completions gateway
// (302.AI by default). The API key of a request overrides the configured one.
type OpenAIAdapter struct {
	client    openai.Client
	model     string
	ocrPrompt string
	images    adapter.ImageResolver
	log       *zerolog.Logger

	// countTokens estimates prompt tokens when the gateway reports no usage.
	countTokens func(model, text string) int
}

type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	requestOpts []option.RequestOption
	images      adapter.ImageResolver
	countTokens func(model, text string) int
}

// WithRequestOptions appends raw SDK options (retries, HTTP client).
func WithRequestOptions(opts ...option.RequestOption) OpenAIOption {
	return func(o *openAIOptions) { o.requestOpts = append(o.requestOpts, opts...) }
}

// WithImageResolver lets the adapter inline images that only this process can serve.
func WithImageResolver(r adapter.ImageResolver) OpenAIOption {
	return func(o *openAIOptions) { o.images = r }
}

// WithTokenCounter replaces the tiktoken based estimate.
func WithTokenCounter(fn func(model, text string) int) OpenAIOption {
	return func(o *openAIOptions) { o.countTokens = fn }
}

func NewOpenAIAdapter(apiKey, baseURL, model, ocrPrompt string, log *zerolog.Logger, opts ...OpenAIOption) *OpenAIAdapter {
	var o openAIOptions
	for _, fn := range opts {
		fn(&o)
	}
	if model == "" {
		model = "chatgpt-4o-latest"
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	reqOpts = append(reqOpts, o.requestOpts...)
	if o.countTokens == nil {
		o.countTokens = tiktokenCount
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &OpenAIAdapter{
		client:      openai.NewClient(reqOpts...),
		model:       model,
		ocrPrompt:   ocrPrompt,
		images:      o.images,
		log:         log,
		countTokens: o.countTokens,
	}
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return []string{o.model}, nil
	}
	out := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, m.ID)
	}
	if len(out) == 0 {
		out = []string{o.model}
	}
	return out, nil
}

// Stream opens a streaming chat completion. Nothing is sent until the
// returned sequence is ranged over.
func (o *OpenAIAdapter) Stream(ctx context.Context, req adapter.GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		mdl := modelOrDefault(req.Model, o.model)
		msgs, err := o.toMessages(req.SystemPrompt, req.Messages)
		if err != nil {
			yield("", err)
			return
		}
		params := openai.ChatCompletionNewParams{
			Model:    shared.ChatModel(mdl),
			Messages: msgs,
			StreamOptions: openai.ChatCompletionStreamOptionsParam{
				IncludeUsage: openai.Bool(true),
			},
		}

		start := time.Now()
		stream := o.client.Chat.Completions.NewStreaming(ctx, params, o.keyOption(req.APIKey)...)
		defer stream.Close()

		var usage adapter.Usage
		var out strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage = adapter.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			out.WriteString(delta)
			if !yield(delta, nil) {
				o.observe(mdl, "stream", usage, req, start, true)
				return
			}
		}
		if err := stream.Err(); err != nil {
			o.observe(mdl, "stream", usage, req, start, false)
			yield("", o.wrapErr(err))
			return
		}
		if usage.TotalTokens == 0 {
			usage.CompletionTokens = o.countTokens(mdl, out.String())
		}
		o.observe(mdl, "stream", usage, req, start, true)
	}
}

// Analyze extracts the text of an image with a non-streaming completion.
func (o *OpenAIAdapter) Analyze(ctx context.Context, req adapter.AnalyzeRequest) (adapter.ImageAnalysis, error) {
	mdl := modelOrDefault(req.Model, o.model)
	imageURL, err := o.imageURL(req.ImageURL)
	if err != nil {
		return adapter.ImageAnalysis{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(mdl),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(o.ocrPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
			}),
		},
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params, o.keyOption(req.APIKey)...)
	if err != nil {
		metrics.ObserveAICall(providerOpenAI, mdl, "ocr", 0, 0, time.Since(start), false)
		return adapter.ImageAnalysis{}, o.wrapErr(err)
	}
	usage := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	metrics.ObserveAICall(providerOpenAI, mdl, "ocr", usage.PromptTokens, usage.CompletionTokens, time.Since(start), true)

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	return adapter.ImageAnalysis{Text: text, Model: resp.Model, Usage: usage}, nil
}

// --- internal ---

func (o *OpenAIAdapter) keyOption(apiKey string) []option.RequestOption {
	if apiKey == "" {
		return nil
	}
	return []option.RequestOption{option.WithAPIKey(apiKey)}
}

func (o *OpenAIAdapter) observe(mdl, kind string, u adapter.Usage, req adapter.GenerateRequest, start time.Time, ok bool) {
	if u.PromptTokens == 0 && ok {
		u.PromptTokens = o.countTokens(mdl, promptText(req))
	}
	metrics.ObserveAICall(providerOpenAI, mdl, kind, u.PromptTokens, u.CompletionTokens, time.Since(start), ok)
}

func (o *OpenAIAdapter) wrapErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	o.log.Debug().Err(err).Str("provider", providerOpenAI).Msg("model call failed")
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe := newProviderError(providerOpenAI, apiErr.StatusCode, apiErr.RawJSON(), apiErr.Message, err)
		metrics.IncProviderError(providerOpenAI, pe.ErrCode)
		return pe
	}
	return err
}

func (o *OpenAIAdapter) toMessages(system string, msgs []model.ChatMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content.Flatten()))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content.Flatten()))
		default:
			if !m.Content.IsParts() {
				out = append(out, openai.UserMessage(m.Content.Text()))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Content.Parts()))
			for _, p := range m.Content.Parts() {
				switch p.Type {
				case model.PartImage:
					u, err := o.imageURL(p.Image)
					if err != nil {
						return nil, err
					}
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: u}))
				default:
					parts = append(parts, openai.TextContentPart(p.Text))
				}
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out, nil
}

// imageURL inlines locally served images as data URLs; the gateway cannot
// reach this process.
func (o *OpenAIAdapter) imageURL(u string) (string, error) {
	if o.images == nil {
		return u, nil
	}
	data, mime, ok, err := o.images.Resolve(u)
	if err != nil {
		return "", err
	}
	if !ok {
		return u, nil
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func promptText(req adapter.GenerateRequest) string {
	var b strings.Builder
	b.WriteString(req.SystemPrompt)
	for _, m := range req.Messages {
		b.WriteString(m.Content.Flatten())
	}
	return b.String()
}

func modelOrDefault(mdl, def string) string {
	if strings.TrimSpace(mdl) != "" {
		return mdl
	}
	return def
}

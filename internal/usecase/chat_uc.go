// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/adapter"
	"ai-answering-machine/internal/domain/ports/repository"
	"ai-answering-machine/internal/infra/logging"
	"ai-answering-machine/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

// ChatState is the observable follow-up conversation of one task. Messages
// is a snapshot and is never mutated after publication.
type ChatState struct {
	TaskID              string              `json:"taskId"`
	Messages            []model.ChatMessage `json:"messages"`
	IsGenerating        bool                `json:"isGenerating"`
	IsWaitingFirstChunk bool                `json:"isWaitingFirstChunk"`
	Err                 string              `json:"error,omitempty"`
	Notice              *adapter.Notice     `json:"notice,omitempty"`
}

type ChatUseCase interface {
	// Load returns the stored conversation content, or an empty history.
	Load(ctx context.Context, taskID string) []model.ChatMessage
	// History returns the in-memory history, loading it on first use.
	History(ctx context.Context, taskID string) []model.ChatMessage
	// Ask appends message and a streamed assistant reply to history and
	// stores the result as the task's conversation.
	Ask(ctx context.Context, task *model.Task, history []model.ChatMessage, message string) ([]model.ChatMessage, error)
	// Clear empties the conversation but keeps its record.
	Clear(ctx context.Context, taskID string) error
	State(taskID string) ChatState
	Watch(taskID string, fn func(ChatState)) (cancel func())
}

type chatUC struct {
	convs    repository.ConversationRepository
	gen      adapter.Generator
	notifier adapter.Notifier
	loc      Localizer
	opts     GenerationOptions
	log      *zerolog.Logger

	mu     sync.Mutex
	runs   runTable
	states map[string]ChatState
	subs   *watchers[ChatState]
}

func NewChatUseCase(
	convs repository.ConversationRepository,
	gen adapter.Generator,
	notifier adapter.Notifier,
	loc Localizer,
	opts GenerationOptions,
	logger *zerolog.Logger,
) *chatUC {
	return &chatUC{
		convs:    convs,
		gen:      gen,
		notifier: notifier,
		loc:      loc,
		opts:     opts,
		log:      logger,
		runs:     newRunTable(),
		states:   make(map[string]ChatState),
		subs:     newWatchers[ChatState](),
	}
}

func (c *chatUC) Load(ctx context.Context, taskID string) []model.ChatMessage {
	conv, err := c.convs.GetByTaskID(ctx, taskID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			metrics.IncStoreError("get_conversation")
			c.log.Error().Err(err).Str("task_id", taskID).Msg("load conversation")
		}
		return []model.ChatMessage{}
	}
	if conv.Content == nil {
		return []model.ChatMessage{}
	}
	return conv.Content
}

func (c *chatUC) History(ctx context.Context, taskID string) []model.ChatMessage {
	c.mu.Lock()
	s, ok := c.states[taskID]
	c.mu.Unlock()
	if ok {
		return model.CloneMessages(s.Messages)
	}
	msgs := c.Load(ctx, taskID)
	c.mu.Lock()
	if _, ok := c.states[taskID]; !ok {
		c.states[taskID] = ChatState{TaskID: taskID, Messages: msgs}
	}
	c.mu.Unlock()
	return model.CloneMessages(msgs)
}

func (c *chatUC) State(taskID string) ChatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[taskID]; ok {
		return s
	}
	return ChatState{TaskID: taskID, Messages: []model.ChatMessage{}}
}

func (c *chatUC) Watch(taskID string, fn func(ChatState)) func() {
	return c.subs.add(taskID, fn)
}

func (c *chatUC) update(taskID string, token uint64, fn func(*ChatState)) bool {
	c.mu.Lock()
	if token != 0 && !c.runs.current(taskID, token) {
		c.mu.Unlock()
		return false
	}
	s, ok := c.states[taskID]
	if !ok {
		s = ChatState{TaskID: taskID}
	}
	fn(&s)
	c.states[taskID] = s
	c.mu.Unlock()
	c.subs.publish(taskID, s)
	return true
}

// turn accumulates the streamed assistant reply on top of a fixed history
// whose last message is the reply placeholder.
type turn struct {
	base  []model.ChatMessage
	reply strings.Builder
}

func (t *turn) add(delta string) { t.reply.WriteString(delta) }

// snapshot returns a fresh copy of the history with the reply filled in.
func (t *turn) snapshot() []model.ChatMessage {
	out := model.CloneMessages(t.base)
	out[len(out)-1].Content = model.TextContent(t.reply.String())
	return out
}

func (c *chatUC) Ask(ctx context.Context, task *model.Task, history []model.ChatMessage, message string) ([]model.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		err := &model.ValidationError{Errors: []model.FieldError{{Field: model.FieldMessage, Message: model.FieldMessageRequiredMsg}}}
		c.log.Debug().Err(err).Msg("chat message rejected")
		return nil, err
	}
	if task == nil || c.opts.APIKey == "" {
		return history, nil
	}
	taskID := task.TaskID
	ctx = logging.WithTaskID(ctx, taskID)
	log := logging.With(ctx, c.log)
	defer logging.TraceDuration(log, "ChatUC.Ask")()

	c.mu.Lock()
	runCtx, token := c.runs.begin(ctx, taskID)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.runs.end(taskID, token)
		c.mu.Unlock()
	}()

	extended := append(model.CloneMessages(history),
		model.ChatMessage{Role: model.RoleUser, Content: model.TextContent(message)},
		model.ChatMessage{Role: model.RoleAssistant, Content: model.TextContent("")},
	)
	cur := &turn{base: extended}
	c.update(taskID, token, func(s *ChatState) {
		*s = ChatState{TaskID: taskID, Messages: cur.snapshot(), IsGenerating: true, IsWaitingFirstChunk: true}
	})

	reqMsgs := []model.ChatMessage{task.SeedMessage()}
	if task.Answer != "" {
		reqMsgs = append(reqMsgs, model.ChatMessage{Role: model.RoleAssistant, Content: model.TextContent(task.Answer)})
	}
	reqMsgs = append(reqMsgs, model.CloneMessages(extended)...)
	req := adapter.GenerateRequest{
		Model:        c.opts.Model,
		SystemPrompt: c.systemPrompt(),
		APIKey:       c.opts.APIKey,
		Messages:     reqMsgs,
	}

	started := time.Now()
	err := consumeStream(c.gen.Stream(runCtx, req), func(delta string, first bool) {
		if first {
			metrics.ObserveFirstChunk("chat", time.Since(started))
		}
		cur.add(delta)
		snap := cur.snapshot()
		c.update(taskID, token, func(s *ChatState) {
			s.IsWaitingFirstChunk = false
			s.Messages = snap
		})
	})

	final := cur.snapshot()
	stale, uerr := c.persist(ctx, taskID, token, final, err == nil)
	if stale {
		metrics.IncGeneration("chat", "superseded")
		log.Debug().Msg("chat run superseded")
		return nil, domain.ErrSuperseded
	}
	if uerr != nil {
		metrics.IncStoreError("upsert_conversation")
		err = uerr
	}
	if err != nil {
		notice := providerNotice(taskID, err, c.loc)
		reportFailure(ctx, c.log, c.notifier, notice, taskID, "chat reply", err)
		c.update(taskID, token, func(s *ChatState) {
			s.Messages = final
			s.IsGenerating = false
			s.IsWaitingFirstChunk = false
			s.Err = err.Error()
			s.Notice = notice
		})
		metrics.IncGeneration("chat", "error")
		return final, err
	}

	c.update(taskID, token, func(s *ChatState) {
		s.Messages = final
		s.IsGenerating = false
		s.IsWaitingFirstChunk = false
		s.Err = ""
		s.Notice = nil
	})
	metrics.IncGeneration("chat", "success")
	log.Info().Int("messages", len(final)).Dur("elapsed", time.Since(started)).Msg("chat reply generated")
	return final, nil
}

// persist checks that token still owns the task's run slot and, when
// store is set, upserts msgs under the same lock.
func (c *chatUC) persist(ctx context.Context, taskID string, token uint64, msgs []model.ChatMessage, store bool) (stale bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.runs.current(taskID, token) {
		return true, nil
	}
	if !store {
		return false, nil
	}
	return false, c.convs.Upsert(ctx, taskID, msgs)
}

func (c *chatUC) Clear(ctx context.Context, taskID string) error {
	// take the slot so an in-flight reply can no longer publish or persist
	c.mu.Lock()
	_, token := c.runs.begin(ctx, taskID)
	c.runs.end(taskID, token)
	c.states[taskID] = ChatState{TaskID: taskID, Messages: []model.ChatMessage{}}
	s := c.states[taskID]
	c.mu.Unlock()
	c.subs.publish(taskID, s)

	if err := c.convs.Clear(ctx, taskID); err != nil {
		metrics.IncStoreError("clear_conversation")
		c.log.Error().Err(err).Str("task_id", taskID).Msg("clear conversation")
		return err
	}
	return nil
}

func (c *chatUC) systemPrompt() string {
	if c.loc == nil {
		return ""
	}
	return c.loc.SystemPrompt()
}

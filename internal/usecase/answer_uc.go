// File: internal/usecase/answer_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/adapter"
	"ai-answering-machine/internal/domain/ports/repository"
	"ai-answering-machine/internal/infra/logging"
	"ai-answering-machine/internal/infra/metrics"
)

// Compile-time check
var _ AnswerUseCase = (*answerUC)(nil)

type AnswerPhase string

const (
	PhaseIdle              AnswerPhase = "idle"
	PhaseWaitingFirstChunk AnswerPhase = "waitingFirstChunk"
	PhaseStreaming         AnswerPhase = "streaming"
	PhaseSucceeded         AnswerPhase = "success"
	PhaseFailed            AnswerPhase = "error"
)

// Settled reports whether the run has finished, successfully or not.
func (p AnswerPhase) Settled() bool { return p == PhaseSucceeded || p == PhaseFailed }

// AnswerState is the observable progress of the answer for one task.
type AnswerState struct {
	TaskID              string          `json:"taskId"`
	Phase               AnswerPhase     `json:"phase"`
	Answer              string          `json:"answer"`
	IsGenerating        bool            `json:"isGenerating"`
	IsWaitingFirstChunk bool            `json:"isWaitingFirstChunk"`
	Err                 string          `json:"error,omitempty"`
	Notice              *adapter.Notice `json:"notice,omitempty"`
}

type AnswerUseCase interface {
	// Generate streams a fresh answer for task and persists it with the
	// search projection. A newer run for the same task supersedes this one,
	// which then returns domain.ErrSuperseded.
	Generate(ctx context.Context, task *model.Task) error
	// Open shows the stored answer or, the first time a task without one is
	// opened, starts generating in the background.
	Open(ctx context.Context, taskID string) (AnswerState, error)
	// Regenerate starts a new background run even if an answer exists.
	Regenerate(ctx context.Context, taskID string) (AnswerState, error)
	State(taskID string) AnswerState
	Watch(taskID string, fn func(AnswerState)) (cancel func())
}

type answerUC struct {
	tasks    repository.TaskRepository
	drafts   DraftUseCase
	gen      adapter.Generator
	ocr      adapter.Analyzer
	notifier adapter.Notifier
	runner   Runner
	loc      Localizer
	opts     GenerationOptions
	log      *zerolog.Logger

	mu     sync.Mutex
	runs   runTable
	states map[string]AnswerState
	opened map[string]bool
	subs   *watchers[AnswerState]
}

func NewAnswerUseCase(
	tasks repository.TaskRepository,
	drafts DraftUseCase,
	ai adapter.AIServiceAdapter,
	notifier adapter.Notifier,
	runner Runner,
	loc Localizer,
	opts GenerationOptions,
	logger *zerolog.Logger,
) *answerUC {
	return &answerUC{
		tasks:    tasks,
		drafts:   drafts,
		gen:      ai,
		ocr:      ai,
		notifier: notifier,
		runner:   runner,
		loc:      loc,
		opts:     opts,
		log:      logger,
		runs:     newRunTable(),
		states:   make(map[string]AnswerState),
		opened:   make(map[string]bool),
		subs:     newWatchers[AnswerState](),
	}
}

func (a *answerUC) State(taskID string) AnswerState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked(taskID)
}

func (a *answerUC) stateLocked(taskID string) AnswerState {
	if s, ok := a.states[taskID]; ok {
		return s
	}
	return AnswerState{TaskID: taskID, Phase: PhaseIdle}
}

func (a *answerUC) Watch(taskID string, fn func(AnswerState)) func() {
	return a.subs.add(taskID, fn)
}

// update applies fn to the state of taskID and publishes the result, unless
// token no longer owns the task. A zero token skips the ownership check.
func (a *answerUC) update(taskID string, token uint64, fn func(*AnswerState)) bool {
	a.mu.Lock()
	if token != 0 && !a.runs.current(taskID, token) {
		a.mu.Unlock()
		return false
	}
	s := a.stateLocked(taskID)
	fn(&s)
	a.states[taskID] = s
	a.mu.Unlock()
	a.subs.publish(taskID, s)
	return true
}

func (a *answerUC) Generate(ctx context.Context, task *model.Task) error {
	if task == nil || a.opts.APIKey == "" {
		return nil
	}
	taskID := task.TaskID
	ctx = logging.WithTaskID(ctx, taskID)
	log := logging.With(ctx, a.log)
	defer logging.TraceDuration(log, "AnswerUC.Generate")()

	a.mu.Lock()
	runCtx, token := a.runs.begin(ctx, taskID)
	a.mu.Unlock()

	var (
		answer  strings.Builder
		started = time.Now()
		runErr  error
	)
	a.update(taskID, token, func(s *AnswerState) {
		*s = AnswerState{TaskID: taskID, Phase: PhaseWaitingFirstChunk, IsGenerating: true, IsWaitingFirstChunk: true}
	})
	defer func() {
		a.mu.Lock()
		a.runs.end(taskID, token)
		a.mu.Unlock()
	}()

	if err := a.tasks.Update(runCtx, taskID, model.TaskUpdate{Status: model.StatusPtr(model.TaskProcessing)}); err != nil {
		log.Warn().Err(err).Msg("mark task processing")
	}

	var searchText string
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		req := adapter.GenerateRequest{
			Model:        a.opts.Model,
			SystemPrompt: a.systemPrompt(),
			APIKey:       a.opts.APIKey,
			Messages:     []model.ChatMessage{task.SeedMessage()},
		}
		return consumeStream(a.gen.Stream(gctx, req), func(delta string, first bool) {
			if first {
				metrics.ObserveFirstChunk("answer", time.Since(started))
			}
			answer.WriteString(delta)
			acc := answer.String()
			a.update(taskID, token, func(s *AnswerState) {
				s.Phase = PhaseStreaming
				s.IsWaitingFirstChunk = false
				s.Answer = acc
			})
		})
	})
	g.Go(func() error {
		text, err := a.projection(gctx, task)
		searchText = text
		return err
	})
	runErr = g.Wait()

	if runErr != nil {
		return a.fail(ctx, task, token, runErr)
	}

	final := answer.String()
	upd := model.TaskUpdate{
		Answer:     model.StringPtr(final),
		SearchText: model.StringPtr(searchText),
		Status:     model.StatusPtr(model.TaskCompleted),
	}
	if err := a.persist(ctx, taskID, token, upd); err != nil {
		if errors.Is(err, domain.ErrSuperseded) {
			return a.superseded(log)
		}
		metrics.IncStoreError("update_task")
		return a.fail(ctx, task, token, err)
	}
	if err := a.drafts.RecordAnswer(ctx, taskID, final); err != nil {
		log.Warn().Err(err).Msg("record answer in draft")
	}
	a.update(taskID, token, func(s *AnswerState) {
		s.Phase = PhaseSucceeded
		s.Answer = final
		s.IsGenerating = false
		s.IsWaitingFirstChunk = false
		s.Err = ""
		s.Notice = nil
	})
	metrics.IncGeneration("answer", "success")
	log.Info().Int("answer_len", len(final)).Dur("elapsed", time.Since(started)).Msg("answer generated")
	return nil
}

// fail settles the run as failed. The partial answer stays in the state;
// only the status is persisted.
func (a *answerUC) fail(ctx context.Context, task *model.Task, token uint64, err error) error {
	log := logging.With(ctx, a.log)
	switch uerr := a.persist(ctx, task.TaskID, token, model.TaskUpdate{Status: model.StatusPtr(model.TaskFailed)}); {
	case errors.Is(uerr, domain.ErrSuperseded):
		return a.superseded(log)
	case uerr != nil:
		log.Warn().Err(uerr).Msg("mark task failed")
	}
	notice := providerNotice(task.TaskID, err, a.loc)
	reportFailure(ctx, a.log, a.notifier, notice, task.TaskID, "answer generation", err)
	a.update(task.TaskID, token, func(s *AnswerState) {
		s.Phase = PhaseFailed
		s.IsGenerating = false
		s.IsWaitingFirstChunk = false
		s.Err = err.Error()
		s.Notice = notice
	})
	metrics.IncGeneration("answer", "error")
	return err
}

// persist writes upd while token still owns the task's run slot. The lock
// is held across the write so no newer run begins in between.
func (a *answerUC) persist(ctx context.Context, taskID string, token uint64, upd model.TaskUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.runs.current(taskID, token) {
		return domain.ErrSuperseded
	}
	return a.tasks.Update(ctx, taskID, upd)
}

func (a *answerUC) superseded(log *zerolog.Logger) error {
	metrics.IncGeneration("answer", "superseded")
	log.Debug().Msg("answer run superseded")
	return domain.ErrSuperseded
}

func (a *answerUC) systemPrompt() string {
	if a.loc == nil {
		return ""
	}
	return a.loc.SystemPrompt()
}

// projection is the searchable text of a task: the question itself, or the
// text recognised in the image.
func (a *answerUC) projection(ctx context.Context, task *model.Task) (string, error) {
	if task.Type == model.TaskTypeText {
		return task.TextExplanation, nil
	}
	res, err := a.ocr.Analyze(ctx, adapter.AnalyzeRequest{
		ImageURL: task.ImageURL,
		Model:    a.opts.ocrModel(),
		APIKey:   a.opts.APIKey,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (a *answerUC) Open(ctx context.Context, taskID string) (AnswerState, error) {
	task, err := a.tasks.GetByTaskID(ctx, taskID)
	if err != nil {
		return AnswerState{}, err
	}
	if !task.HasInput() {
		return a.State(taskID), nil
	}

	a.mu.Lock()
	busy := a.runs.inFlight(taskID)
	first := !a.opened[taskID]
	a.opened[taskID] = true
	a.mu.Unlock()

	switch {
	case busy:
	case task.Answer != "":
		a.update(taskID, 0, func(s *AnswerState) {
			*s = AnswerState{TaskID: taskID, Phase: PhaseSucceeded, Answer: task.Answer}
		})
	case first && a.opts.APIKey != "":
		a.start(ctx, task)
	}
	return a.State(taskID), nil
}

func (a *answerUC) Regenerate(ctx context.Context, taskID string) (AnswerState, error) {
	task, err := a.tasks.GetByTaskID(ctx, taskID)
	if err != nil {
		return AnswerState{}, err
	}
	if !task.HasInput() || a.opts.APIKey == "" {
		return a.State(taskID), nil
	}
	a.mu.Lock()
	a.opened[taskID] = true
	a.mu.Unlock()
	a.start(ctx, task)
	return a.State(taskID), nil
}

// start runs Generate in the background. The run outlives ctx. The task is
// shown as waiting while the run is queued.
func (a *answerUC) start(ctx context.Context, task *model.Task) {
	a.update(task.TaskID, 0, func(s *AnswerState) {
		*s = AnswerState{TaskID: task.TaskID, Phase: PhaseWaitingFirstChunk, IsGenerating: true, IsWaitingFirstChunk: true}
	})
	job := func(runCtx context.Context) error {
		err := a.Generate(runCtx, task)
		if errors.Is(err, domain.ErrSuperseded) {
			return nil
		}
		return err
	}
	if a.runner != nil {
		err := a.runner.Submit(job)
		if err == nil {
			return
		}
		a.log.Warn().Err(err).Str("task_id", task.TaskID).Msg("worker pool rejected answer run, running inline")
	}
	go func() { _ = job(context.WithoutCancel(ctx)) }()
}

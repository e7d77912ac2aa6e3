//go:build !integration

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/adapter"
)

type answerFixture struct {
	uc       *answerUC
	tasks    *memTaskRepo
	ai       *fakeAI
	notifier *fakeNotifier
	runner   *inlineRunner
	drafts   *stubDrafts
}

func newAnswerFixture(opts GenerationOptions) *answerFixture {
	f := &answerFixture{
		tasks:    newMemTaskRepo(),
		ai:       &fakeAI{},
		notifier: &fakeNotifier{},
		runner:   &inlineRunner{},
		drafts:   &stubDrafts{},
	}
	f.uc = NewAnswerUseCase(f.tasks, f.drafts, f.ai, f.notifier, f.runner, fakeLocalizer{}, opts, nopLogger())
	return f
}

var testOpts = GenerationOptions{APIKey: "sk-test", Model: "gpt-4o", OCRModel: "gpt-4o-mini"}

// recorder collects every published state.
type recorder[S any] struct {
	mu     sync.Mutex
	states []S
}

func (r *recorder[S]) add(s S) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder[S]) all() []S {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]S(nil), r.states...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func textTask(id, q string) model.Task {
	return model.Task{TaskID: id, Type: model.TaskTypeText, TextExplanation: q, Status: model.TaskPending}
}

func TestGenerateStreamsAccumulatedAnswer(t *testing.T) {
	ctx := context.Background()
	f := newAnswerFixture(testOpts)
	f.ai.deltas = []string{"Hel", "lo", " world"}
	task := textTask("t1", "say hello")
	seedTasks(t, f.tasks, task)

	rec := &recorder[AnswerState]{}
	cancel := f.uc.Watch("t1", rec.add)
	defer cancel()

	if err := f.uc.Generate(ctx, &task); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var answers []string
	waiting := 0
	for _, s := range rec.all() {
		if s.IsWaitingFirstChunk {
			waiting++
		}
		if s.Phase == PhaseStreaming {
			answers = append(answers, s.Answer)
		}
	}
	if want := []string{"Hel", "Hello", "Hello world"}; !equalIDs(answers, want) {
		t.Errorf("want streamed answers %v, got %v", want, answers)
	}
	for _, s := range rec.all() {
		if s.Phase == PhaseStreaming && s.IsWaitingFirstChunk {
			t.Errorf("streaming state still waiting for the first chunk: %+v", s)
		}
	}
	if waiting != 1 {
		t.Errorf("waitingFirstChunk should be published once, got %d", waiting)
	}

	final := f.uc.State("t1")
	if final.Phase != PhaseSucceeded || final.IsGenerating || final.IsWaitingFirstChunk || final.Answer != "Hello world" {
		t.Errorf("unexpected final state: %+v", final)
	}
	req := f.ai.lastRequest()
	if req.SystemPrompt != "system" || req.APIKey != "sk-test" || len(req.Messages) != 1 || req.Messages[0].Content.Text() != "say hello" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestGeneratePersistsAnswerAndProjection(t *testing.T) {
	ctx := context.Background()

	t.Run("text task", func(t *testing.T) {
		f := newAnswerFixture(testOpts)
		f.ai.deltas = []string{"4"}
		task := textTask("t1", "2+2?")
		seedTasks(t, f.tasks, task)

		if err := f.uc.Generate(ctx, &task); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		stored, _ := f.tasks.GetByTaskID(ctx, "t1")
		if stored.Answer != "4" || stored.SearchText != "2+2?" || stored.Status != model.TaskCompleted {
			t.Errorf("unexpected stored task: %+v", stored)
		}
		if f.drafts.answers["t1"] != "4" {
			t.Errorf("draft should receive the answer, got %q", f.drafts.answers["t1"])
		}
		if len(f.ai.analyzed) != 0 {
			t.Error("text tasks must not call OCR")
		}
	})

	t.Run("image task uses ocr text", func(t *testing.T) {
		f := newAnswerFixture(testOpts)
		f.ai.deltas = []string{"a cat"}
		f.ai.ocrText = "what animal is this"
		task := model.Task{TaskID: "t2", Type: model.TaskTypeImage, ImageURL: "http://x/cat.png"}
		seedTasks(t, f.tasks, task)

		if err := f.uc.Generate(ctx, &task); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		stored, _ := f.tasks.GetByTaskID(ctx, "t2")
		if stored.SearchText != "what animal is this" {
			t.Errorf("unexpected search text %q", stored.SearchText)
		}
		if len(f.ai.analyzed) != 1 || f.ai.analyzed[0].Model != "gpt-4o-mini" || f.ai.analyzed[0].ImageURL != task.ImageURL {
			t.Errorf("unexpected OCR request: %+v", f.ai.analyzed)
		}
		parts := f.ai.lastRequest().Messages[0].Content.Parts()
		if len(parts) != 1 || parts[0].Type != model.PartImage {
			t.Errorf("expected one image part, got %+v", parts)
		}
	})

	t.Run("ocr failure fails the run", func(t *testing.T) {
		f := newAnswerFixture(testOpts)
		f.ai.deltas = []string{"a cat"}
		f.ai.ocrErr = errors.New("ocr down")
		task := model.Task{TaskID: "t3", Type: model.TaskTypeImage, ImageURL: "http://x/cat.png"}
		seedTasks(t, f.tasks, task)

		if err := f.uc.Generate(ctx, &task); err == nil {
			t.Fatal("expected an error")
		}
		stored, _ := f.tasks.GetByTaskID(ctx, "t3")
		if stored.Answer != "" || stored.Status != model.TaskFailed {
			t.Errorf("unexpected stored task: %+v", stored)
		}
	})
}

func TestGenerateWithoutCredentialsIsNoop(t *testing.T) {
	f := newAnswerFixture(GenerationOptions{Model: "gpt-4o"})
	task := textTask("t1", "q")
	if err := f.uc.Generate(context.Background(), &task); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := f.uc.Generate(context.Background(), nil); err != nil {
		t.Fatalf("expected nil for a missing task, got %v", err)
	}
	if f.ai.streamCalls() != 0 {
		t.Error("no request should be made")
	}
}

func TestGenerateErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("provider code produces a notice", func(t *testing.T) {
		f := newAnswerFixture(testOpts)
		f.ai.deltas = []string{"par"}
		f.ai.streamErr = &adapter.ProviderError{Provider: "openai", StatusCode: 402, ErrCode: -10004, Message: "balance"}
		task := textTask("t1", "q")
		seedTasks(t, f.tasks, task)

		err := f.uc.Generate(ctx, &task)
		if code, ok := adapter.ErrorCode(err); !ok || code != -10004 {
			t.Fatalf("expected provider code -10004, got %v", err)
		}
		if f.notifier.count() != 1 || f.notifier.notices[0].Message != "insufficient balance" {
			t.Errorf("unexpected notices: %+v", f.notifier.notices)
		}
		s := f.uc.State("t1")
		if s.Phase != PhaseFailed || s.IsGenerating || s.Answer != "par" || s.Notice == nil {
			t.Errorf("unexpected state: %+v", s)
		}
		stored, _ := f.tasks.GetByTaskID(ctx, "t1")
		if stored.Answer != "" || stored.Status != model.TaskFailed {
			t.Errorf("partial answer must not be persisted: %+v", stored)
		}
	})

	t.Run("plain errors are only logged", func(t *testing.T) {
		f := newAnswerFixture(testOpts)
		f.ai.streamErr = errors.New("connection reset")
		task := textTask("t1", "q")
		seedTasks(t, f.tasks, task)

		if err := f.uc.Generate(ctx, &task); err == nil {
			t.Fatal("expected an error")
		}
		if f.notifier.count() != 0 {
			t.Errorf("expected no notice, got %d", f.notifier.count())
		}
		if s := f.uc.State("t1"); s.IsGenerating || s.IsWaitingFirstChunk {
			t.Errorf("flags must be cleared: %+v", s)
		}
	})
}

func TestGenerateSupersededRun(t *testing.T) {
	ctx := context.Background()
	f := newAnswerFixture(testOpts)
	f.ai.deltas = []string{"new"}
	f.ai.gate = make(chan struct{})
	task := textTask("t1", "q")
	seedTasks(t, f.tasks, task)

	firstErr := make(chan error, 1)
	go func() { firstErr <- f.uc.Generate(ctx, &task) }()
	waitFor(t, func() bool { return f.ai.streamCalls() == 1 })

	secondErr := make(chan error, 1)
	go func() { secondErr <- f.uc.Generate(ctx, &task) }()
	waitFor(t, func() bool { return f.ai.streamCalls() == 2 })
	close(f.ai.gate)

	if err := <-firstErr; !errors.Is(err, domain.ErrSuperseded) {
		t.Errorf("first run should be superseded, got %v", err)
	}
	if err := <-secondErr; err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if s := f.uc.State("t1"); s.Phase != PhaseSucceeded || s.Answer != "new" {
		t.Errorf("unexpected state: %+v", s)
	}
	if stored, _ := f.tasks.GetByTaskID(ctx, "t1"); stored.Status != model.TaskCompleted || stored.Answer != "new" {
		t.Errorf("superseded run must not touch the stored task: %+v", stored)
	}
	if f.notifier.count() != 0 {
		t.Errorf("superseded run must not notify, got %d", f.notifier.count())
	}
}

func TestPersistIsFencedByRunToken(t *testing.T) {
	ctx := context.Background()
	f := newAnswerFixture(testOpts)
	seedTasks(t, f.tasks, textTask("t1", "q"))

	f.uc.mu.Lock()
	_, older := f.uc.runs.begin(ctx, "t1")
	_, newer := f.uc.runs.begin(ctx, "t1")
	f.uc.mu.Unlock()

	err := f.uc.persist(ctx, "t1", older, model.TaskUpdate{Answer: model.StringPtr("stale")})
	if !errors.Is(err, domain.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if stored, _ := f.tasks.GetByTaskID(ctx, "t1"); stored.Answer != "" {
		t.Fatalf("stale write reached the store: %q", stored.Answer)
	}

	if err := f.uc.persist(ctx, "t1", newer, model.TaskUpdate{Answer: model.StringPtr("fresh")}); err != nil {
		t.Fatalf("current run write failed: %v", err)
	}
	if stored, _ := f.tasks.GetByTaskID(ctx, "t1"); stored.Answer != "fresh" {
		t.Errorf("want fresh, got %q", stored.Answer)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("generates once per task", func(t *testing.T) {
		f := newAnswerFixture(testOpts)
		f.ai.deltas = []string{"4"}
		seedTasks(t, f.tasks, textTask("t1", "2+2?"))

		s, err := f.uc.Open(ctx, "t1")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if s.Phase != PhaseSucceeded || s.Answer != "4" {
			t.Errorf("unexpected state after open: %+v", s)
		}
		// clear the stored answer so a second trigger would be visible
		_ = f.tasks.Update(ctx, "t1", model.TaskUpdate{Answer: model.StringPtr("")})
		_, _ = f.uc.Open(ctx, "t1")
		if f.runner.count() != 1 || f.ai.streamCalls() != 1 {
			t.Errorf("expected one run, got %d submissions and %d streams", f.runner.count(), f.ai.streamCalls())
		}
	})

	t.Run("stored answer is shown without generating", func(t *testing.T) {
		f := newAnswerFixture(testOpts)
		task := textTask("t1", "2+2?")
		task.Answer = "4"
		seedTasks(t, f.tasks, task)

		s, err := f.uc.Open(ctx, "t1")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if s.Phase != PhaseSucceeded || s.Answer != "4" || f.runner.count() != 0 {
			t.Errorf("unexpected state %+v with %d runs", s, f.runner.count())
		}
	})

	t.Run("empty input does nothing", func(t *testing.T) {
		f := newAnswerFixture(testOpts)
		seedTasks(t, f.tasks, model.Task{TaskID: "t1", Type: model.TaskTypeImage})
		s, err := f.uc.Open(ctx, "t1")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if s.Phase != PhaseIdle || f.runner.count() != 0 {
			t.Errorf("unexpected state %+v", s)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		f := newAnswerFixture(testOpts)
		if _, err := f.uc.Open(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("regenerate runs again", func(t *testing.T) {
		f := newAnswerFixture(testOpts)
		f.ai.deltas = []string{"5"}
		task := textTask("t1", "2+3?")
		task.Answer = "old"
		seedTasks(t, f.tasks, task)

		s, err := f.uc.Regenerate(ctx, "t1")
		if err != nil {
			t.Fatalf("Regenerate failed: %v", err)
		}
		if s.Answer != "5" || f.runner.count() != 1 {
			t.Errorf("unexpected state %+v", s)
		}
	})
}

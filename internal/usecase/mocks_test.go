// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/adapter"
	"ai-answering-machine/internal/live"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memTaskRepo is a small in-memory implementation used by unit tests.
type memTaskRepo struct {
	mu      sync.Mutex
	hub     *live.Hub
	now     func() time.Time
	nextID  uint
	rows    []*model.Task
	listErr error // used by tests to simulate read failures
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{hub: live.NewHub(), now: time.Now}
}

func (m *memTaskRepo) find(taskID string) *model.Task {
	for _, t := range m.rows {
		if t.TaskID == taskID && !t.IsDeleted {
			return t
		}
	}
	return nil
}

func (m *memTaskRepo) Create(ctx context.Context, task *model.Task) (uint, error) {
	m.mu.Lock()
	m.nextID++
	now := m.now()
	task.ID = m.nextID
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = task.CreatedAt
	cp := *task
	m.rows = append(m.rows, &cp)
	m.mu.Unlock()
	m.hub.Notify(live.Tasks)
	return task.ID, nil
}

func (m *memTaskRepo) Update(ctx context.Context, taskID string, upd model.TaskUpdate) error {
	m.mu.Lock()
	t := m.find(taskID)
	if t == nil {
		m.mu.Unlock()
		return nil
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.TextExplanation != nil {
		t.TextExplanation = *upd.TextExplanation
	}
	if upd.ImageURL != nil {
		t.ImageURL = *upd.ImageURL
	}
	if upd.Answer != nil {
		t.Answer = *upd.Answer
	}
	if upd.SearchText != nil {
		t.SearchText = *upd.SearchText
	}
	t.UpdatedAt = m.now()
	m.mu.Unlock()
	m.hub.Notify(live.Tasks)
	return nil
}

func (m *memTaskRepo) GetByTaskID(ctx context.Context, taskID string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(taskID)
	if t == nil {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskRepo) SoftDelete(ctx context.Context, taskID string) error {
	m.mu.Lock()
	if t := m.find(taskID); t != nil {
		t.IsDeleted = true
	}
	m.mu.Unlock()
	m.hub.Notify(live.Tasks)
	return nil
}

func (m *memTaskRepo) ListAll(ctx context.Context) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []model.Task{}
	for _, t := range m.rows {
		if !t.IsDeleted {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memTaskRepo) Scan(ctx context.Context) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Task, 0, len(m.rows))
	for _, t := range m.rows {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memTaskRepo) Subscribe() (<-chan struct{}, func()) { return m.hub.Subscribe(live.Tasks) }

// memConvRepo keeps conversations by task id.
type memConvRepo struct {
	mu      sync.Mutex
	hub     *live.Hub
	nextID  uint
	byTask  map[string]*model.Conversation
	upserts int
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{hub: live.NewHub(), byTask: make(map[string]*model.Conversation)}
}

func (m *memConvRepo) Create(ctx context.Context, taskID string, content []model.ChatMessage) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.byTask[taskID] = &model.Conversation{ID: m.nextID, TaskID: taskID, Content: model.CloneMessages(content)}
	return m.nextID, nil
}

func (m *memConvRepo) Update(ctx context.Context, taskID string, content []model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byTask[taskID]; ok && !c.IsDeleted {
		c.Content = model.CloneMessages(content)
	}
	return nil
}

func (m *memConvRepo) GetByTaskID(ctx context.Context, taskID string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byTask[taskID]
	if !ok || c.IsDeleted {
		return nil, domain.ErrNotFound
	}
	cp := *c
	cp.Content = model.CloneMessages(c.Content)
	return &cp, nil
}

func (m *memConvRepo) SoftDelete(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byTask[taskID]; ok {
		c.IsDeleted = true
	}
	return nil
}

func (m *memConvRepo) Upsert(ctx context.Context, taskID string, content []model.ChatMessage) error {
	m.mu.Lock()
	m.upserts++
	c, ok := m.byTask[taskID]
	m.mu.Unlock()
	if ok && !c.IsDeleted {
		return m.Update(ctx, taskID, content)
	}
	_, err := m.Create(ctx, taskID, content)
	return err
}

func (m *memConvRepo) Clear(ctx context.Context, taskID string) error {
	return m.Upsert(ctx, taskID, []model.ChatMessage{})
}

func (m *memConvRepo) Scan(ctx context.Context) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Conversation, 0, len(m.byTask))
	for _, c := range m.byTask {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memConvRepo) Subscribe() (<-chan struct{}, func()) { return m.hub.Subscribe(live.Conversations) }

// fakeAI streams a fixed list of deltas, optionally followed by an error.
// When gate is set every stream blocks on it before the first delta.
type fakeAI struct {
	mu        sync.Mutex
	deltas    []string
	streamErr error
	ocrText   string
	ocrErr    error
	gate      chan struct{}
	requests  []adapter.GenerateRequest
	analyzed  []adapter.AnalyzeRequest
}

func (f *fakeAI) ListModels(ctx context.Context) ([]string, error) { return []string{"fake"}, nil }

func (f *fakeAI) Stream(ctx context.Context, req adapter.GenerateRequest) iter.Seq2[string, error] {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	deltas := append([]string(nil), f.deltas...)
	streamErr, gate := f.streamErr, f.gate
	f.mu.Unlock()
	return func(yield func(string, error) bool) {
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}
		for _, d := range deltas {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if !yield(d, nil) {
				return
			}
		}
		if streamErr != nil {
			yield("", streamErr)
		}
	}
}

func (f *fakeAI) Analyze(ctx context.Context, req adapter.AnalyzeRequest) (adapter.ImageAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzed = append(f.analyzed, req)
	if f.ocrErr != nil {
		return adapter.ImageAnalysis{}, f.ocrErr
	}
	return adapter.ImageAnalysis{Text: f.ocrText, Model: req.Model}, nil
}

func (f *fakeAI) lastRequest() adapter.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeAI) streamCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []adapter.Notice
}

func (n *fakeNotifier) Notify(ctx context.Context, notice adapter.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type fakeLocalizer struct{}

func (fakeLocalizer) SystemPrompt() string { return "system" }

func (fakeLocalizer) ErrorMessage(code int) string {
	if code == -10004 {
		return "insufficient balance"
	}
	return "something went wrong"
}

// inlineRunner runs submitted work synchronously.
type inlineRunner struct {
	mu        sync.Mutex
	submitted int
	err       error
}

func (r *inlineRunner) Submit(task func(ctx context.Context) error) error {
	r.mu.Lock()
	r.submitted++
	r.mu.Unlock()
	r.err = task(context.Background())
	return nil
}

func (r *inlineRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitted
}

// stubDrafts records answers handed over by the orchestrator.
type stubDrafts struct {
	DraftUseCase
	mu      sync.Mutex
	answers map[string]string
}

func (s *stubDrafts) RecordAnswer(ctx context.Context, taskID, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answers == nil {
		s.answers = map[string]string{}
	}
	s.answers[taskID] = answer
	return nil
}

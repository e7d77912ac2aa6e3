package application

import (
	"context"
	"fmt"
	"time"

	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/usecase"
)

// AnsweringFacade composes usecases into the page-level operations of the
// answering machine: opening a task and browsing the record list.
type AnsweringFacade struct {
	Tasks   TaskReader
	Answers AnswerOpener
	Records RecordSearcher
	Chat    ChatHistory
	Loc     *time.Location
}

// NewAnsweringFacade constructs a facade from provided usecases. Any of them
// can be nil; methods that need a missing one return an error.
func NewAnsweringFacade(tasks TaskReader, answers AnswerOpener, records RecordSearcher, chat ChatHistory, loc *time.Location) *AnsweringFacade {
	if loc == nil {
		loc = time.Local
	}
	return &AnsweringFacade{Tasks: tasks, Answers: answers, Records: records, Chat: chat, Loc: loc}
}

// TaskPage is everything the task view shows.
type TaskPage struct {
	Task         *model.Task         `json:"task"`
	Answer       usecase.AnswerState `json:"answer"`
	Conversation []model.ChatMessage `json:"conversation"`
}

// OpenTask loads the task, shows or starts its answer and loads the
// follow-up conversation. An unknown id yields domain.ErrNotFound.
func (f *AnsweringFacade) OpenTask(ctx context.Context, taskID string) (*TaskPage, error) {
	if f.Tasks == nil || f.Answers == nil {
		return nil, fmt.Errorf("task usecases not available")
	}
	task, err := f.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	state, err := f.Answers.Open(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("open answer: %w", err)
	}
	page := &TaskPage{Task: task, Answer: state, Conversation: []model.ChatMessage{}}
	if f.Chat != nil {
		page.Conversation = f.Chat.History(ctx, taskID)
	}
	return page, nil
}

// RecordQuery is the search bar input. Bounds are widened to whole days.
type RecordQuery struct {
	Text string
	From *time.Time
	To   *time.Time
}

// ListRecords returns matching tasks grouped by day, newest day first.
func (f *AnsweringFacade) ListRecords(ctx context.Context, q RecordQuery) []model.DayGroup {
	if f.Records == nil {
		return []model.DayGroup{}
	}
	filter := model.TaskFilter{SearchText: q.Text}
	if q.From != nil {
		from, _ := usecase.DayRange(*q.From, *q.From, f.Loc)
		filter.StartDate = &from
	}
	if q.To != nil {
		_, to := usecase.DayRange(*q.To, *q.To, f.Loc)
		filter.EndDate = &to
	}
	return usecase.GroupByDay(f.Records.SearchRecords(ctx, filter), f.Loc)
}

// AskFollowUp appends message to the task's conversation and waits for the reply.
func (f *AnsweringFacade) AskFollowUp(ctx context.Context, taskID, message string) ([]model.ChatMessage, error) {
	if f.Tasks == nil || f.Chat == nil {
		return nil, fmt.Errorf("chat usecases not available")
	}
	task, err := f.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return f.Chat.Ask(ctx, task, f.Chat.History(ctx, taskID), message)
}

// File: internal/usecase/search_uc.go
package usecase

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/repository"
	"ai-answering-machine/internal/infra/metrics"
	"ai-answering-machine/internal/live"
)

// Compile-time check
var _ SearchUseCase = (*searchUC)(nil)

// SearchUseCase queries stored tasks. Store failures are logged and yield
// empty results; they are never returned.
type SearchUseCase interface {
	// Search matches SearchText against the task projection only. The date
	// range applies only when both bounds are set.
	Search(ctx context.Context, filter *model.TaskFilter, sort model.TaskSort) []model.Task
	// SearchRecords matches SearchText against the projection or the
	// question text, applies each date bound on its own and orders newest first.
	SearchRecords(ctx context.Context, filter model.TaskFilter) []model.Task
	// Watch re-runs Search and groups the result by day after every task mutation.
	Watch(ctx context.Context, filter *model.TaskFilter, sort model.TaskSort) *live.Watch[[]model.DayGroup]
}

type searchUC struct {
	tasks repository.TaskRepository
	loc   *time.Location
	log   *zerolog.Logger
}

func NewSearchUseCase(tasks repository.TaskRepository, loc *time.Location, logger *zerolog.Logger) *searchUC {
	if loc == nil {
		loc = time.Local
	}
	return &searchUC{tasks: tasks, loc: loc, log: logger}
}

func (s *searchUC) Search(ctx context.Context, filter *model.TaskFilter, sort model.TaskSort) []model.Task {
	all, err := s.tasks.ListAll(ctx)
	if err != nil {
		s.storeFailed("search", err)
		return []model.Task{}
	}
	out := make([]model.Task, 0, len(all))
	for _, t := range all {
		if filter != nil {
			if filter.SearchText != "" && !containsFold(t.SearchText, filter.SearchText) {
				continue
			}
			if filter.StartDate != nil && filter.EndDate != nil &&
				(t.CreatedAt.Before(*filter.StartDate) || t.CreatedAt.After(*filter.EndDate)) {
				continue
			}
		}
		out = append(out, t)
	}
	SortTasks(out, sort)
	return out
}

func (s *searchUC) SearchRecords(ctx context.Context, filter model.TaskFilter) []model.Task {
	all, err := s.tasks.ListAll(ctx)
	if err != nil {
		s.storeFailed("search_records", err)
		return []model.Task{}
	}
	out := make([]model.Task, 0, len(all))
	for _, t := range all {
		if filter.SearchText != "" &&
			!containsFold(t.SearchText, filter.SearchText) && !containsFold(t.TextExplanation, filter.SearchText) {
			continue
		}
		if filter.StartDate != nil && t.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && t.CreatedAt.After(*filter.EndDate) {
			continue
		}
		out = append(out, t)
	}
	SortTasks(out, model.DefaultSort)
	return out
}

func (s *searchUC) Watch(ctx context.Context, filter *model.TaskFilter, sort model.TaskSort) *live.Watch[[]model.DayGroup] {
	sig, release := s.tasks.Subscribe()
	return live.Start(ctx, sig, release, func(ctx context.Context) ([]model.DayGroup, error) {
		return GroupByDay(s.Search(ctx, filter, sort), s.loc), nil
	}, nil)
}

func (s *searchUC) storeFailed(op string, err error) {
	metrics.IncStoreError(op)
	s.log.Error().Err(err).Str("op", op).Msg("task query failed")
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// SortTasks orders tasks in place by sort.Field; ties keep their order.
func SortTasks(tasks []model.Task, sort model.TaskSort) {
	slices.SortStableFunc(tasks, func(a, b model.Task) int {
		c := sort.Value(&a).Compare(sort.Value(&b))
		if sort.Direction == model.SortAsc {
			return c
		}
		return -c
	})
}

// ToggleSort flips to descending only when field is already sorted ascending.
func ToggleSort(prev model.TaskSort, field model.SortField) model.TaskSort {
	if prev.Field == field && prev.Direction == model.SortAsc {
		return model.TaskSort{Field: field, Direction: model.SortDesc}
	}
	return model.TaskSort{Field: field, Direction: model.SortAsc}
}

// DayKeyLayout formats the YYYY.MM.DD group key.
const DayKeyLayout = "2006.01.02"

// GroupByDay buckets tasks by the calendar day of CreatedAt in loc. Groups
// are ordered newest day first; order inside a group is kept.
func GroupByDay(tasks []model.Task, loc *time.Location) []model.DayGroup {
	if loc == nil {
		loc = time.Local
	}
	idx := map[string]int{}
	groups := []model.DayGroup{}
	for _, t := range tasks {
		key := t.CreatedAt.In(loc).Format(DayKeyLayout)
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, model.DayGroup{Date: key})
		}
		groups[i].Tasks = append(groups[i].Tasks, t)
	}
	// the key layout sorts lexicographically in date order
	slices.SortStableFunc(groups, func(a, b model.DayGroup) int { return strings.Compare(b.Date, a.Date) })
	return groups
}

// DayRange widens start to the beginning of its day and end to the last
// instant of its day, in loc.
func DayRange(start, end time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	s := start.In(loc)
	e := end.In(loc)
	from := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
	to := time.Date(e.Year(), e.Month(), e.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), loc)
	return from, to
}

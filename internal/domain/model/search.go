package model

import "time"

type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type TaskSort struct {
	Field     SortField     `json:"field"`
	Direction SortDirection `json:"direction"`
}

// DefaultSort orders newest first.
var DefaultSort = TaskSort{Field: SortByCreatedAt, Direction: SortDesc}

// Value returns the timestamp the sort field refers to.
func (s TaskSort) Value(t *Task) time.Time {
	if s.Field == SortByUpdatedAt {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// TaskFilter fields are optional and AND-combined.
type TaskFilter struct {
	SearchText string     `json:"searchText,omitempty"`
	StartDate  *time.Time `json:"startDate,omitempty"`
	EndDate    *time.Time `json:"endDate,omitempty"`
}

// DayGroup is the tasks created on one calendar day, keyed YYYY.MM.DD.
type DayGroup struct {
	Date  string `json:"date"`
	Tasks []Task `json:"tasks"`
}

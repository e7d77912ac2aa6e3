package model

import "ai-answering-machine/internal/domain"

// DraftKey is the storage slot holding the serialized current draft.
const DraftKey = "current-task"

// Draft is the in-progress task bound to the composing form.
type Draft struct {
	TaskID          string     `json:"taskId"`
	Status          TaskStatus `json:"status"`
	Type            TaskType   `json:"taskType"`
	TextExplanation string     `json:"textExplanation"`
	ImageURL        string     `json:"imageUrl"`
	Answer          string     `json:"answer"`
}

// NewDraft returns the default draft for the given identifier.
func NewDraft(taskID string) *Draft {
	return &Draft{
		TaskID: taskID,
		Status: TaskPending,
		Type:   TaskTypeImage,
	}
}

type DraftField string

const (
	DraftTaskType        DraftField = "taskType"
	DraftTextExplanation DraftField = "textExplanation"
	DraftImageURL        DraftField = "imageUrl"
	DraftStatus          DraftField = "status"
	DraftAnswer          DraftField = "answer"
)

// Set assigns one field. Values are stored as given; validation happens when
// the draft is committed.
func (d *Draft) Set(field DraftField, value string) error {
	switch field {
	case DraftTaskType:
		d.Type = TaskType(value)
	case DraftTextExplanation:
		d.TextExplanation = value
	case DraftImageURL:
		d.ImageURL = value
	case DraftStatus:
		d.Status = TaskStatus(value)
	case DraftAnswer:
		d.Answer = value
	default:
		return domain.ErrUnknownField
	}
	return nil
}

// Task builds the pending task committed from this draft.
func (d *Draft) Task() *Task {
	return &Task{
		TaskID:          d.TaskID,
		Status:          TaskPending,
		Type:            d.Type,
		TextExplanation: d.TextExplanation,
		ImageURL:        d.ImageURL,
	}
}

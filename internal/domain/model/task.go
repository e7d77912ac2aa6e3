package model

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

type TaskType string

const (
	TaskTypeText  TaskType = "text"
	TaskTypeImage TaskType = "image"
)

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	return t == TaskTypeText || t == TaskTypeImage
}

// Task is one question/answer unit. TaskID is generated when the draft is
// created and stays stable for the whole lifetime of the task.
type Task struct {
	ID              uint       `json:"id"`
	TaskID          string     `json:"taskId"`
	Status          TaskStatus `json:"status"`
	Type            TaskType   `json:"taskType"`
	TextExplanation string     `json:"textExplanation"`
	ImageURL        string     `json:"imageUrl"`
	Answer          string     `json:"answer"`
	SearchText      string     `json:"searchText"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	IsDeleted       bool       `json:"isDeleted"`
}

// HasInput reports whether the field required by the task type is filled.
func (t *Task) HasInput() bool {
	switch t.Type {
	case TaskTypeText:
		return t.TextExplanation != ""
	case TaskTypeImage:
		return t.ImageURL != ""
	}
	return false
}

// SeedMessage is the user turn that opens every model request for the task:
// the literal question for text tasks, an image part for image tasks.
func (t *Task) SeedMessage() ChatMessage {
	if t.Type == TaskTypeText {
		return ChatMessage{Role: RoleUser, Content: TextContent(t.TextExplanation)}
	}
	return ChatMessage{Role: RoleUser, Content: PartsContent(ImagePart(t.ImageURL))}
}

// Question returns a short human readable label for logs and listings.
func (t *Task) Question() string {
	if t.Type == TaskTypeText {
		return strings.TrimSpace(t.TextExplanation)
	}
	return t.ImageURL
}

// TaskUpdate carries the partial fields merged by TaskRepository.Update.
// Nil fields are left untouched. The task type cannot be changed once committed.
type TaskUpdate struct {
	Status          *TaskStatus
	TextExplanation *string
	ImageURL        *string
	Answer          *string
	SearchText      *string
}

func StatusPtr(s TaskStatus) *TaskStatus { return &s }

func StringPtr(s string) *string { return &s }

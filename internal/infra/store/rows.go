package store

import (
	"time"

	"gorm.io/datatypes"

	"ai-answering-machine/internal/domain/model"
)

// record is implemented by the pointer of every row type.
type record[R any] interface {
	*R
	stamp(now time.Time)
	rowID() uint
}

type taskRow struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	TaskID          string    `gorm:"not null;index"`
	Status          string    `gorm:"not null;index"`
	TaskType        string    `gorm:"not null;index"`
	TextExplanation string    `gorm:"type:text"`
	ImageURL        string    `gorm:"column:image_url"`
	Answer          string    `gorm:"type:text"`
	SearchText      string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null;index;autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"not null;index;autoUpdateTime:false"`
	IsDeleted       bool      `gorm:"not null;default:false;index"`
}

func (taskRow) TableName() string { return "tasks" }

func (r *taskRow) stamp(now time.Time) {
	r.CreatedAt = now
	r.UpdatedAt = now
	r.IsDeleted = false
}

func (r *taskRow) rowID() uint { return r.ID }

func taskRowFrom(t *model.Task) *taskRow {
	return &taskRow{
		TaskID:          t.TaskID,
		Status:          string(t.Status),
		TaskType:        string(t.Type),
		TextExplanation: t.TextExplanation,
		ImageURL:        t.ImageURL,
		Answer:          t.Answer,
		SearchText:      t.SearchText,
	}
}

func (r *taskRow) toModel() model.Task {
	return model.Task{
		ID:              r.ID,
		TaskID:          r.TaskID,
		Status:          model.TaskStatus(r.Status),
		Type:            model.TaskType(r.TaskType),
		TextExplanation: r.TextExplanation,
		ImageURL:        r.ImageURL,
		Answer:          r.Answer,
		SearchText:      r.SearchText,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		IsDeleted:       r.IsDeleted,
	}
}

type conversationRow struct {
	ID        uint                                 `gorm:"primaryKey;autoIncrement"`
	TaskID    string                               `gorm:"not null;index"`
	Content   datatypes.JSONSlice[model.ChatMessage] `gorm:"type:text"`
	CreatedAt time.Time                            `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time                            `gorm:"not null;autoUpdateTime:false"`
	IsDeleted bool                                 `gorm:"not null;default:false;index"`
}

func (conversationRow) TableName() string { return "conversations" }

func (r *conversationRow) stamp(now time.Time) {
	r.CreatedAt = now
	r.UpdatedAt = now
	r.IsDeleted = false
}

func (r *conversationRow) rowID() uint { return r.ID }

func (r *conversationRow) toModel() model.Conversation {
	content := []model.ChatMessage(r.Content)
	if content == nil {
		content = []model.ChatMessage{}
	}
	return model.Conversation{
		ID:        r.ID,
		TaskID:    r.TaskID,
		Content:   content,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		IsDeleted: r.IsDeleted,
	}
}

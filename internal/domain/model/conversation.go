package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one element of a multi-part message.
type Part struct {
	Type  PartType `json:"type"`
	Text  string   `json:"text,omitempty"`
	Image string   `json:"image,omitempty"`
}

func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

func ImagePart(url string) Part { return Part{Type: PartImage, Image: url} }

// MessageContent is either plain text or a list of parts. The zero value is
// empty text.
type MessageContent struct {
	text  string
	parts []Part
	multi bool
}

func TextContent(s string) MessageContent { return MessageContent{text: s} }

func PartsContent(parts ...Part) MessageContent {
	cp := make([]Part, len(parts))
	copy(cp, parts)
	return MessageContent{parts: cp, multi: true}
}

func (c MessageContent) IsParts() bool { return c.multi }

// Text returns the raw string of a text content, "" for part lists.
func (c MessageContent) Text() string { return c.text }

// Parts returns a copy of the parts of a part-list content.
func (c MessageContent) Parts() []Part {
	if !c.multi {
		return nil
	}
	cp := make([]Part, len(c.parts))
	copy(cp, c.parts)
	return cp
}

// Flatten concatenates the text-bearing content. Image parts contribute nothing.
func (c MessageContent) Flatten() string {
	if !c.multi {
		return c.text
	}
	var b strings.Builder
	for _, p := range c.parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.multi {
		if c.parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = MessageContent{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextContent(s)
	case '[':
		var parts []Part
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = MessageContent{parts: parts, multi: true}
	default:
		return fmt.Errorf("message content: unexpected json %q", data[:1])
	}
	return nil
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    Role           `json:"role"`
	Content MessageContent `json:"content"`
}

// CloneMessages returns a deep copy so snapshots never alias a live history.
func CloneMessages(msgs []ChatMessage) []ChatMessage {
	if msgs == nil {
		return nil
	}
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ChatMessage{Role: m.Role, Content: m.Content}
		if m.Content.multi {
			out[i].Content = PartsContent(m.Content.parts...)
		}
	}
	return out
}

// Conversation is the follow-up chat attached to a task. There is at most
// one active conversation per TaskID; clearing it empties Content.
type Conversation struct {
	ID        uint          `json:"id"`
	TaskID    string        `json:"taskId"`
	Content   []ChatMessage `json:"content"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	IsDeleted bool          `json:"isDeleted"`
}

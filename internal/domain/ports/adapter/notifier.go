package adapter

import "context"

// Notice is a user-visible message about a failed generation.
type Notice struct {
	TaskID  string `json:"taskId"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

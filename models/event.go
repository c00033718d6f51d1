package models

import "time"

// TaskEvent is the plain-data payload sent to the notifications service on
// every status change. Delivery is best effort, this service never blocks a
// transition on it.
type TaskEvent struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"taskId"`
	ProjectID  string     `json:"projectId"`
	Actor      string     `json:"actor"`
	FromStatus TaskStatus `json:"fromStatus"`
	ToStatus   TaskStatus `json:"toStatus"`
	Issue      string     `json:"issue,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in progress"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// StartedProgressFloor is the minimum progress a task gets when it is moved
// to "in progress" from a cold start. The dashboard quick actions rely on it.
const StartedProgressFloor = 50

// allowedTransitions is the full status state machine. Anything not listed
// here is rejected with an invalid-transition error.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusBlocked},
	StatusCompleted:  {StatusPending},
	StatusBlocked:    {StatusInProgress},
}

// ParseTaskStatus normalizes a client-supplied status string to the canonical
// enumeration. The legacy "done" alias maps to completed and never propagates
// further than this function.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, nil
	case "in progress", "in_progress", "inprogress":
		return StatusInProgress, nil
	case "completed", "done":
		return StatusCompleted, nil
	case "blocked":
		return StatusBlocked, nil
	default:
		return "", fmt.Errorf("unknown task status: %q", raw)
	}
}

func (s TaskStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransitionTo reports whether the state machine allows moving from s to
// target. A same-status request is not a transition and is handled by the
// caller as an idempotent no-op.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func ParseTaskPriority(raw string) (TaskPriority, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return PriorityLow, nil
	case "medium", "":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("unknown task priority: %q", raw)
	}
}

type Task struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID          string             `bson:"projectId" json:"projectId"`
	Name               string             `bson:"name" json:"name"`
	Description        string             `bson:"description" json:"description"`
	AssignedTo         string             `bson:"assignedTo" json:"assignedTo"`
	Status             TaskStatus         `bson:"status" json:"status"`
	Priority           TaskPriority       `bson:"priority" json:"priority"`
	Weight             int                `bson:"weight" json:"weight"`
	ProgressPercentage int                `bson:"progressPercentage" json:"progressPercentage"`
	DueDate            *time.Time         `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	BlockedIssue       string             `bson:"blockedIssue,omitempty" json:"blockedIssue,omitempty"`
	CompletedAt        *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`

	// AssigneeOnLeave is computed on read against the current team roster,
	// it is never persisted.
	AssigneeOnLeave bool `bson:"-" json:"assigneeOnLeave,omitempty"`
}

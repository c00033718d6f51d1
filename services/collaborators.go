package services

import (
	"context"

	"github.com/Yohan-Helitha/DesynFlow-sub000/models"
)

// TeamDirectory is the teams-service roster lookup consumed by this service.
type TeamDirectory interface {
	GetTeamMembers(ctx context.Context, teamID string) ([]models.Member, error)
}

// ProjectDirectory is the projects-service view this service reads, plus the
// best-effort progress cache refresh it writes back.
type ProjectDirectory interface {
	GetProject(ctx context.Context, projectID string) (*models.Project, error)
	UpdateProgress(ctx context.Context, projectID string, progress int) error
}

// EventSink receives status-change events for downstream reporting.
type EventSink interface {
	SendTaskEvent(ctx context.Context, event models.TaskEvent) error
}

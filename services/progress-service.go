package services

import (
	"context"
	"fmt"
	"math"

	"github.com/Yohan-Helitha/DesynFlow-sub000/logging"
	"github.com/Yohan-Helitha/DesynFlow-sub000/models"
	"github.com/Yohan-Helitha/DesynFlow-sub000/repositories"
)

// ProgressService derives a project's completion percentage from the weights
// and statuses of its current tasks. The value is computed at read time, the
// projects service only caches it for display.
type ProgressService struct {
	store    repositories.TaskStore
	projects ProjectDirectory
}

func NewProgressService(store repositories.TaskStore, projects ProjectDirectory) *ProgressService {
	return &ProgressService{
		store:    store,
		projects: projects,
	}
}

// ComputeProjectProgress returns round(100 * completedWeight / totalWeight)
// clamped to [0, 100]. An empty task set or an all-zero-weight task set
// yields 0, never a positive percentage.
func (s *ProgressService) ComputeProjectProgress(ctx context.Context, projectID string) (int, error) {
	tasks, err := s.store.ListByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to load tasks for project %s: %w", projectID, err)
	}

	return WeightedProgress(tasks), nil
}

// WeightedProgress is the aggregation itself, split out so callers holding a
// task set do not need another store round trip.
func WeightedProgress(tasks []*models.Task) int {
	if len(tasks) == 0 {
		return 0
	}

	totalWeight := 0
	completedWeight := 0
	for _, task := range tasks {
		totalWeight += task.Weight
		if task.Status == models.StatusCompleted {
			completedWeight += task.Weight
		}
	}

	if totalWeight == 0 {
		return 0
	}

	progress := int(math.Round(100 * float64(completedWeight) / float64(totalWeight)))
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return progress
}

// RefreshCachedProgress recomputes the project's progress and pushes it to
// the projects service. Failures are logged and swallowed, the cache is a
// display convenience and must never fail the mutation that triggered it.
func (s *ProgressService) RefreshCachedProgress(ctx context.Context, projectID string) {
	progress, err := s.ComputeProjectProgress(ctx, projectID)
	if err != nil {
		logging.Logger.Warnf("Event ID: PROGRESS_REFRESH_FAILED, Description: Failed to recompute progress for project %s: %v", projectID, err)
		return
	}

	if err := s.projects.UpdateProgress(ctx, projectID, progress); err != nil {
		logging.Logger.Warnf("Event ID: PROGRESS_CACHE_UPDATE_FAILED, Description: Failed to push cached progress for project %s: %v", projectID, err)
	}
}

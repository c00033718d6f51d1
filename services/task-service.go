package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Yohan-Helitha/DesynFlow-sub000/logging"
	"github.com/Yohan-Helitha/DesynFlow-sub000/models"
	"github.com/Yohan-Helitha/DesynFlow-sub000/repositories"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// transitionAttempts bounds the re-read/re-validate loop when a transition
// races with another writer.
const transitionAttempts = 3

type TaskService struct {
	store       repositories.TaskStore
	assignments *AssignmentService
	projects    ProjectDirectory
	teams       TeamDirectory
	progress    *ProgressService
	events      EventSink
	now         func() time.Time
}

func NewTaskService(
	store repositories.TaskStore,
	assignments *AssignmentService,
	projects ProjectDirectory,
	teams TeamDirectory,
	progress *ProgressService,
	events EventSink,
) *TaskService {
	return &TaskService{
		store:       store,
		assignments: assignments,
		projects:    projects,
		teams:       teams,
		progress:    progress,
		events:      events,
		now:         time.Now,
	}
}

type CreateTaskInput struct {
	ProjectID   string     `json:"projectId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	AssignedTo  string     `json:"assignedTo"`
	Priority    string     `json:"priority"`
	Weight      int        `json:"weight"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

type UpdateTaskInput struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	AssignedTo  *string    `json:"assignedTo,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Weight      *int       `json:"weight,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// TransitionOptions carries the extra data some transitions need. Issue is
// mandatory for a move to blocked.
type TransitionOptions struct {
	Issue string `json:"issue,omitempty"`
	Actor string `json:"-"`
}

// CreateTask validates the input and persists a new pending task. All checks
// run before the write; a returned Resolution with Warning set means the
// assignment went through against a busy member.
func (s *TaskService) CreateTask(ctx context.Context, input CreateTaskInput) (*models.Task, *Resolution, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, nil, models.NewValidationError("name", "task name must not be empty")
	}
	if strings.TrimSpace(input.AssignedTo) == "" {
		return nil, nil, models.NewValidationError("assignedTo", "task assignee is required")
	}
	if input.Weight < 0 || input.Weight > 100 {
		return nil, nil, models.NewRangeError("weight", "weight must be between 0 and 100, got %d", input.Weight)
	}

	priority, err := models.ParseTaskPriority(input.Priority)
	if err != nil {
		return nil, nil, models.NewValidationError("priority", "%v", err)
	}

	project, err := s.projects.GetProject(ctx, input.ProjectID)
	if err != nil {
		if models.KindOf(err) != "" {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to resolve project %s: %w", input.ProjectID, err)
	}

	if input.DueDate != nil {
		if err := s.validateDueDate(*input.DueDate, project, true); err != nil {
			return nil, nil, err
		}
	}

	resolution, err := s.assignments.Resolve(ctx, input.ProjectID, input.AssignedTo)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	task := &models.Task{
		ProjectID:          input.ProjectID,
		Name:               strings.TrimSpace(input.Name),
		Description:        input.Description,
		AssignedTo:         input.AssignedTo,
		Status:             models.StatusPending,
		Priority:           priority,
		Weight:             input.Weight,
		ProgressPercentage: 0,
		DueDate:            input.DueDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	created, err := s.store.Insert(ctx, task)
	if err != nil {
		return nil, nil, err
	}

	s.progress.RefreshCachedProgress(ctx, created.ProjectID)

	return created, resolution, nil
}

// UpdateTask merges the patch into the task and re-validates every touched
// constrained field. Status is deliberately absent from the patch, status
// changes go through TransitionTask only.
func (s *TaskService) UpdateTask(ctx context.Context, id primitive.ObjectID, patch UpdateTaskInput) (*models.Task, *Resolution, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, models.NewNotFoundError("task %s not found", id.Hex())
		}
		return nil, nil, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, nil, models.NewValidationError("name", "task name must not be empty")
		}
		task.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Weight != nil {
		if *patch.Weight < 0 || *patch.Weight > 100 {
			return nil, nil, models.NewRangeError("weight", "weight must be between 0 and 100, got %d", *patch.Weight)
		}
		task.Weight = *patch.Weight
	}
	if patch.Priority != nil {
		priority, err := models.ParseTaskPriority(*patch.Priority)
		if err != nil {
			return nil, nil, models.NewValidationError("priority", "%v", err)
		}
		task.Priority = priority
	}

	if patch.DueDate != nil {
		project, err := s.projects.GetProject(ctx, task.ProjectID)
		if err != nil {
			if models.KindOf(err) != "" {
				return nil, nil, err
			}
			return nil, nil, fmt.Errorf("failed to resolve project %s: %w", task.ProjectID, err)
		}
		if err := s.validateDueDate(*patch.DueDate, project, false); err != nil {
			return nil, nil, err
		}
		task.DueDate = patch.DueDate
	}

	var resolution *Resolution
	if patch.AssignedTo != nil && *patch.AssignedTo != task.AssignedTo {
		if strings.TrimSpace(*patch.AssignedTo) == "" {
			return nil, nil, models.NewValidationError("assignedTo", "task assignee is required")
		}
		resolution, err = s.assignments.Resolve(ctx, task.ProjectID, *patch.AssignedTo)
		if err != nil {
			return nil, nil, err
		}
		task.AssignedTo = *patch.AssignedTo
	}

	task.UpdatedAt = s.now().UTC()

	updated, err := s.store.Replace(ctx, task)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, models.NewNotFoundError("task %s not found", id.Hex())
		}
		return nil, nil, err
	}

	s.progress.RefreshCachedProgress(ctx, updated.ProjectID)

	return updated, resolution, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, id primitive.ObjectID) error {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.NewNotFoundError("task %s not found", id.Hex())
		}
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.NewNotFoundError("task %s not found", id.Hex())
		}
		return err
	}

	s.progress.RefreshCachedProgress(ctx, task.ProjectID)

	return nil
}

func (s *TaskService) GetTask(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, models.NewNotFoundError("task %s not found", id.Hex())
		}
		return nil, err
	}
	return task, nil
}

// ListTasksByProject returns the project's tasks with assignees who are
// currently on leave flagged. The roster lookup is best effort, a teams
// outage degrades to an unflagged listing instead of failing the read.
func (s *TaskService) ListTasksByProject(ctx context.Context, projectID string) ([]*models.Task, error) {
	tasks, err := s.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return tasks, nil
	}

	onLeave, err := s.onLeaveMembers(ctx, projectID)
	if err != nil {
		logging.Logger.Warnf("Event ID: ROSTER_LOOKUP_FAILED, Description: Could not flag on-leave assignees for project %s: %v", projectID, err)
		return tasks, nil
	}

	for _, task := range tasks {
		if _, found := onLeave[task.AssignedTo]; found {
			task.AssigneeOnLeave = true
		}
	}

	return tasks, nil
}

// TransitionTask applies a status change through the state machine. The same
// target status applied twice is a no-op, and a transition racing another
// writer is re-validated against the freshly read status before retrying.
func (s *TaskService) TransitionTask(ctx context.Context, id primitive.ObjectID, targetRaw string, opts TransitionOptions) (*models.Task, error) {
	target, err := models.ParseTaskStatus(targetRaw)
	if err != nil {
		return nil, models.NewValidationError("status", "%v", err)
	}

	for attempt := 0; attempt < transitionAttempts; attempt++ {
		task, err := s.store.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, models.NewNotFoundError("task %s not found", id.Hex())
			}
			return nil, err
		}

		if task.Status == target {
			// Duplicate request, the first application already ran the side
			// effects.
			return task, nil
		}

		if !task.Status.CanTransitionTo(target) {
			return nil, models.NewInvalidTransitionError(task.Status, target)
		}

		update, err := s.buildTransitionUpdate(task, target, opts)
		if err != nil {
			return nil, err
		}

		updated, err := s.store.ApplyTransition(ctx, id, task.Status, update)
		if err != nil {
			if errors.Is(err, repositories.ErrStatusConflict) {
				continue
			}
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, models.NewNotFoundError("task %s not found", id.Hex())
			}
			return nil, err
		}

		s.emitTaskEvent(ctx, task.Status, updated, opts)
		s.progress.RefreshCachedProgress(ctx, updated.ProjectID)

		return updated, nil
	}

	return nil, fmt.Errorf("transition of task %s kept racing other writers, giving up", id.Hex())
}

// HasUnfinishedTasks reports whether the project still has tasks that are not
// completed. The projects service calls this before archiving a project.
func (s *TaskService) HasUnfinishedTasks(ctx context.Context, projectID string) (bool, error) {
	tasks, err := s.store.ListByProject(ctx, projectID)
	if err != nil {
		return false, err
	}

	for _, task := range tasks {
		if task.Status != models.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *TaskService) buildTransitionUpdate(task *models.Task, target models.TaskStatus, opts TransitionOptions) (repositories.TransitionUpdate, error) {
	update := repositories.TransitionUpdate{Status: target}

	switch target {
	case models.StatusInProgress:
		if task.ProgressPercentage == 0 {
			floor := models.StartedProgressFloor
			update.Progress = &floor
		}
	case models.StatusCompleted:
		full := 100
		update.Progress = &full
		completedAt := s.now().UTC()
		update.CompletedAt = &completedAt
	case models.StatusBlocked:
		if strings.TrimSpace(opts.Issue) == "" {
			return update, models.NewValidationError("issue", "an issue description is required to block a task")
		}
		update.BlockedIssue = strings.TrimSpace(opts.Issue)
	case models.StatusPending:
		// Reopening keeps the progress the task had when it was completed.
		update.ClearCompletedAt = true
	}

	return update, nil
}

func (s *TaskService) emitTaskEvent(ctx context.Context, from models.TaskStatus, task *models.Task, opts TransitionOptions) {
	event := models.TaskEvent{
		ID:         uuid.New().String(),
		TaskID:     task.ID.Hex(),
		ProjectID:  task.ProjectID,
		Actor:      opts.Actor,
		FromStatus: from,
		ToStatus:   task.Status,
		OccurredAt: s.now().UTC(),
	}
	if task.Status == models.StatusBlocked {
		event.Issue = task.BlockedIssue
	}

	if err := s.events.SendTaskEvent(ctx, event); err != nil {
		logging.Logger.Warnf("Event ID: TASK_EVENT_DELIVERY_FAILED, Description: Failed to deliver %s event for task %s: %v", task.Status, task.ID.Hex(), err)
	}
}

func (s *TaskService) onLeaveMembers(ctx context.Context, projectID string) (map[string]struct{}, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	members, err := s.teams.GetTeamMembers(ctx, project.AssignedTeamID)
	if err != nil {
		return nil, err
	}

	onLeave := make(map[string]struct{})
	for _, member := range members {
		if member.Availability == models.AvailabilityOnLeave {
			onLeave[member.ID] = struct{}{}
		}
	}
	return onLeave, nil
}

// validateDueDate enforces the due-date window. The not-in-the-past rule only
// applies when the task is being created.
func (s *TaskService) validateDueDate(dueDate time.Time, project *models.Project, atCreation bool) error {
	if atCreation {
		today := s.now().UTC().Truncate(24 * time.Hour)
		if dueDate.Before(today) {
			return models.NewRangeError("dueDate", "due date %s is in the past", dueDate.Format("2006-01-02"))
		}
	}
	if !project.StartDate.IsZero() && dueDate.Before(project.StartDate) {
		return models.NewRangeError("dueDate", "due date %s precedes the project start date %s",
			dueDate.Format("2006-01-02"), project.StartDate.Format("2006-01-02"))
	}
	if !project.DueDate.IsZero() && dueDate.After(project.DueDate) {
		return models.NewRangeError("dueDate", "due date %s exceeds the project due date %s",
			dueDate.Format("2006-01-02"), project.DueDate.Format("2006-01-02"))
	}
	return nil
}

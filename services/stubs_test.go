package services

import (
	"context"
	"sync"
	"time"

	"github.com/Yohan-Helitha/DesynFlow-sub000/models"
	"github.com/Yohan-Helitha/DesynFlow-sub000/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore is an in-memory repositories.TaskStore with the same semantics as
// the Mongo implementation, including the status precondition on transitions.
type memStore struct {
	mu    sync.Mutex
	tasks map[primitive.ObjectID]*models.Task
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[primitive.ObjectID]*models.Task)}
}

func copyTask(task *models.Task) *models.Task {
	clone := *task
	return &clone
}

func (m *memStore) Insert(_ context.Context, task *models.Task) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	m.tasks[task.ID] = copyTask(task)
	return copyTask(task), nil
}

func (m *memStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return copyTask(task), nil
}

func (m *memStore) Replace(_ context.Context, task *models.Task) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[task.ID]; !ok {
		return nil, repositories.ErrNotFound
	}
	m.tasks[task.ID] = copyTask(task)
	return copyTask(task), nil
}

func (m *memStore) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memStore) ListByProject(_ context.Context, projectID string) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []*models.Task
	for _, task := range m.tasks {
		if task.ProjectID == projectID {
			tasks = append(tasks, copyTask(task))
		}
	}
	return tasks, nil
}

func (m *memStore) ApplyTransition(_ context.Context, id primitive.ObjectID, from models.TaskStatus, update repositories.TransitionUpdate) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if task.Status != from {
		return nil, repositories.ErrStatusConflict
	}

	task.Status = update.Status
	task.UpdatedAt = time.Now().UTC()
	if update.Progress != nil {
		task.ProgressPercentage = *update.Progress
	}
	if update.CompletedAt != nil {
		task.CompletedAt = update.CompletedAt
	}
	if update.ClearCompletedAt {
		task.CompletedAt = nil
	}
	if update.BlockedIssue != "" {
		task.BlockedIssue = update.BlockedIssue
	}

	return copyTask(task), nil
}

func (m *memStore) statusOf(id primitive.ObjectID) models.TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task, ok := m.tasks[id]; ok {
		return task.Status
	}
	return ""
}

func (m *memStore) setStatus(id primitive.ObjectID, status models.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task, ok := m.tasks[id]; ok {
		task.Status = status
	}
}

// conflictStore wraps a memStore and runs beforeApply just before every
// preconditioned write, standing in for another writer that slips in between
// the service's read and its ApplyTransition.
type conflictStore struct {
	*memStore
	beforeApply func(id primitive.ObjectID)
}

func (c *conflictStore) ApplyTransition(ctx context.Context, id primitive.ObjectID, from models.TaskStatus, update repositories.TransitionUpdate) (*models.Task, error) {
	if c.beforeApply != nil {
		c.beforeApply(id)
	}
	return c.memStore.ApplyTransition(ctx, id, from, update)
}

type stubProjects struct {
	projects        map[string]*models.Project
	getErr          error
	updateErr       error
	progressUpdates map[string][]int
}

func newStubProjects(projects ...*models.Project) *stubProjects {
	s := &stubProjects{
		projects:        make(map[string]*models.Project),
		progressUpdates: make(map[string][]int),
	}
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	return s
}

func (s *stubProjects) GetProject(_ context.Context, projectID string) (*models.Project, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	project, ok := s.projects[projectID]
	if !ok {
		return nil, models.NewReferenceError("projectId", "project %s not found", projectID)
	}
	return project, nil
}

func (s *stubProjects) UpdateProgress(_ context.Context, projectID string, progress int) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.progressUpdates[projectID] = append(s.progressUpdates[projectID], progress)
	return nil
}

type stubTeams struct {
	members map[string][]models.Member
	err     error
}

func (s *stubTeams) GetTeamMembers(_ context.Context, teamID string) ([]models.Member, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.members[teamID], nil
}

type stubEvents struct {
	events []models.TaskEvent
	err    error
}

func (s *stubEvents) SendTaskEvent(_ context.Context, event models.TaskEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

// testFixture wires the services against in-memory collaborators: one
// project, one team with an available leader, a busy member and a member on
// leave.
type testFixture struct {
	store    repositories.TaskStore
	projects *stubProjects
	teams    *stubTeams
	events   *stubEvents
	tasks    *TaskService
	progress *ProgressService
	resolver *AssignmentService
}

func newTestFixture() *testFixture {
	return newTestFixtureWithStore(newMemStore())
}

func newTestFixtureWithStore(store repositories.TaskStore) *testFixture {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	projects := newStubProjects(&models.Project{
		ID:             "proj-1",
		StartDate:      start,
		DueDate:        due,
		AssignedTeamID: "team-1",
	})

	teams := &stubTeams{members: map[string][]models.Member{
		"team-1": {
			{ID: "u-lead", Username: "lead", Role: models.RoleTeamLeader, Availability: models.AvailabilityAvailable, Workload: 40},
			{ID: "u-busy", Username: "busy", Role: models.RoleTeamMember, Availability: models.AvailabilityBusy, Workload: 85},
			{ID: "u-away", Username: "away", Role: models.RoleTeamMember, Availability: models.AvailabilityOnLeave, Workload: 0},
		},
	}}

	events := &stubEvents{}

	resolver := NewAssignmentService(projects, teams)
	progress := NewProgressService(store, projects)
	tasks := NewTaskService(store, resolver, projects, teams, progress, events)
	tasks.now = func() time.Time {
		return time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	}

	return &testFixture{
		store:    store,
		projects: projects,
		teams:    teams,
		events:   events,
		tasks:    tasks,
		progress: progress,
		resolver: resolver,
	}
}

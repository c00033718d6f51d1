package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Yohan-Helitha/DesynFlow-sub000/middleware"
	"github.com/Yohan-Helitha/DesynFlow-sub000/models"
	"github.com/Yohan-Helitha/DesynFlow-sub000/repositories"
	"github.com/Yohan-Helitha/DesynFlow-sub000/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeStore struct {
	mu    sync.Mutex
	tasks map[primitive.ObjectID]*models.Task
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[primitive.ObjectID]*models.Task)}
}

func (f *fakeStore) clone(task *models.Task) *models.Task {
	c := *task
	return &c
}

func (f *fakeStore) Insert(_ context.Context, task *models.Task) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	f.tasks[task.ID] = f.clone(task)
	return f.clone(task), nil
}

func (f *fakeStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return f.clone(task), nil
}

func (f *fakeStore) Replace(_ context.Context, task *models.Task) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; !ok {
		return nil, repositories.ErrNotFound
	}
	f.tasks[task.ID] = f.clone(task)
	return f.clone(task), nil
}

func (f *fakeStore) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) ListByProject(_ context.Context, projectID string) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tasks []*models.Task
	for _, task := range f.tasks {
		if task.ProjectID == projectID {
			tasks = append(tasks, f.clone(task))
		}
	}
	return tasks, nil
}

func (f *fakeStore) ApplyTransition(_ context.Context, id primitive.ObjectID, from models.TaskStatus, update repositories.TransitionUpdate) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
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
	return f.clone(task), nil
}

type fakeProjects struct{ project *models.Project }

func (f *fakeProjects) GetProject(_ context.Context, projectID string) (*models.Project, error) {
	if f.project == nil || f.project.ID != projectID {
		return nil, models.NewReferenceError("projectId", "project %s not found", projectID)
	}
	return f.project, nil
}

func (f *fakeProjects) UpdateProgress(context.Context, string, int) error { return nil }

type fakeTeams struct{ members []models.Member }

func (f *fakeTeams) GetTeamMembers(context.Context, string) ([]models.Member, error) {
	return f.members, nil
}

type fakeEvents struct{ events []models.TaskEvent }

func (f *fakeEvents) SendTaskEvent(_ context.Context, event models.TaskEvent) error {
	f.events = append(f.events, event)
	return nil
}

func newTestRouter() (*mux.Router, *fakeStore) {
	store := newFakeStore()
	projects := &fakeProjects{project: &models.Project{
		ID:             "proj-1",
		StartDate:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		DueDate:        time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC),
		AssignedTeamID: "team-1",
	}}
	teams := &fakeTeams{members: []models.Member{
		{ID: "u-lead", Role: models.RoleTeamLeader, Availability: models.AvailabilityAvailable},
		{ID: "u-busy", Role: models.RoleTeamMember, Availability: models.AvailabilityBusy, Workload: 90},
		{ID: "u-away", Role: models.RoleTeamMember, Availability: models.AvailabilityOnLeave},
	}}
	events := &fakeEvents{}

	resolver := services.NewAssignmentService(projects, teams)
	progress := services.NewProgressService(store, projects)
	taskService := services.NewTaskService(store, resolver, projects, teams, progress, events)
	handler := NewTaskHandler(taskService, resolver, progress)

	r := mux.NewRouter()
	r.HandleFunc("/api/tasks", handler.CreateTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{taskID}", handler.GetTask).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{taskID}", handler.UpdateTask).Methods(http.MethodPatch)
	r.HandleFunc("/api/tasks/{taskID}", handler.DeleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/api/tasks/{taskID}/status", handler.TransitionTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/project/{projectId}", handler.GetTasksByProject).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/project/{projectId}/progress", handler.GetProjectProgress).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/project/{projectId}/has-unfinished", handler.HasUnfinishedTasks).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/project/{projectId}/assignment-check/{userID}", handler.CheckAssignment).Methods(http.MethodGet)

	return r, store
}

func doRequest(t *testing.T, router *mux.Router, method, path, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		claims := &middleware.Claims{UserID: "u-lead", Username: "lead", Role: role}
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func createTaskJSON(assignee string) map[string]interface{} {
	return map[string]interface{}{
		"projectId":  "proj-1",
		"name":       "Install lighting fixtures",
		"assignedTo": assignee,
		"priority":   "medium",
		"weight":     20,
	}
}

func TestCreateTaskEndpoint(t *testing.T) {
	router, _ := newTestRouter()

	recorder := doRequest(t, router, http.MethodPost, "/api/tasks", models.RoleTeamLeader, createTaskJSON("u-lead"))
	require.Equal(t, http.StatusCreated, recorder.Code)

	var resp struct {
		Task    *models.Task `json:"task"`
		Warning bool         `json:"warning"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "Install lighting fixtures", resp.Task.Name)
	assert.Equal(t, models.StatusPending, resp.Task.Status)
	assert.False(t, resp.Warning)
}

func TestCreateTaskEndpointRoleChecks(t *testing.T) {
	router, _ := newTestRouter()

	recorder := doRequest(t, router, http.MethodPost, "/api/tasks", models.RoleTeamMember, createTaskJSON("u-lead"))
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = doRequest(t, router, http.MethodPost, "/api/tasks", "", createTaskJSON("u-lead"))
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestCreateTaskEndpointErrorMapping(t *testing.T) {
	router, _ := newTestRouter()

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{
			name: "empty name",
			body: func() map[string]interface{} {
				b := createTaskJSON("u-lead")
				b["name"] = ""
				return b
			}(),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "weight out of range",
			body: func() map[string]interface{} {
				b := createTaskJSON("u-lead")
				b["weight"] = 300
				return b
			}(),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown project",
			body: func() map[string]interface{} {
				b := createTaskJSON("u-lead")
				b["projectId"] = "proj-404"
				return b
			}(),
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "assignee not on team",
			body:       createTaskJSON("u-stranger"),
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "assignee on leave",
			body:       createTaskJSON("u-away"),
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := doRequest(t, router, http.MethodPost, "/api/tasks", models.RoleTeamLeader, tt.body)
			assert.Equal(t, tt.wantStatus, recorder.Code)
		})
	}
}

func TestCreateTaskEndpointBusyWarning(t *testing.T) {
	router, _ := newTestRouter()

	recorder := doRequest(t, router, http.MethodPost, "/api/tasks", models.RoleTeamLeader, createTaskJSON("u-busy"))
	require.Equal(t, http.StatusCreated, recorder.Code)

	var resp struct {
		Warning bool   `json:"warning"`
		Reason  string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.True(t, resp.Warning)
	assert.NotEmpty(t, resp.Reason)
}

func TestTransitionEndpoint(t *testing.T) {
	router, store := newTestRouter()

	task, err := store.Insert(context.Background(), &models.Task{
		ProjectID:  "proj-1",
		Name:       "Paint master bedroom",
		AssignedTo: "u-lead",
		Status:     models.StatusPending,
		Weight:     10,
	})
	require.NoError(t, err)

	path := fmt.Sprintf("/api/tasks/%s/status", task.ID.Hex())

	// The state machine rejects the shortcut to completed.
	recorder := doRequest(t, router, http.MethodPost, path, models.RoleTeamMember, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusConflict, recorder.Code)

	recorder = doRequest(t, router, http.MethodPost, path, models.RoleTeamMember, map[string]string{"status": "in progress"})
	require.Equal(t, http.StatusOK, recorder.Code)

	var updated models.Task
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &updated))
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, models.StartedProgressFloor, updated.ProgressPercentage)

	// Blocking without an issue description is a validation failure.
	recorder = doRequest(t, router, http.MethodPost, path, models.RoleTeamMember, map[string]string{"status": "blocked", "issue": ""})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doRequest(t, router, http.MethodPost, path, models.RoleTeamMember, map[string]string{"status": "blocked", "issue": "missing materials"})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &updated))
	assert.Equal(t, models.StatusBlocked, updated.Status)
}

func TestTransitionEndpointUnknownTask(t *testing.T) {
	router, _ := newTestRouter()

	path := fmt.Sprintf("/api/tasks/%s/status", primitive.NewObjectID().Hex())
	recorder := doRequest(t, router, http.MethodPost, path, models.RoleTeamMember, map[string]string{"status": "in progress"})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestProjectProgressEndpoint(t *testing.T) {
	router, store := newTestRouter()

	_, err := store.Insert(context.Background(), &models.Task{
		ProjectID: "proj-1", Name: "a", Weight: 40, Status: models.StatusCompleted,
	})
	require.NoError(t, err)
	_, err = store.Insert(context.Background(), &models.Task{
		ProjectID: "proj-1", Name: "b", Weight: 60, Status: models.StatusInProgress,
	})
	require.NoError(t, err)

	recorder := doRequest(t, router, http.MethodGet, "/api/tasks/project/proj-1/progress", models.RoleTeamMember, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, 40, resp["progress"])
}

func TestAssignmentCheckEndpoint(t *testing.T) {
	router, _ := newTestRouter()

	recorder := doRequest(t, router, http.MethodGet, "/api/tasks/project/proj-1/assignment-check/u-busy", models.RoleTeamLeader, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resolution services.Resolution
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resolution))
	assert.True(t, resolution.Warning)

	recorder = doRequest(t, router, http.MethodGet, "/api/tasks/project/proj-1/assignment-check/u-away", models.RoleTeamLeader, nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestDeleteTaskEndpoint(t *testing.T) {
	router, store := newTestRouter()

	task, err := store.Insert(context.Background(), &models.Task{
		ProjectID: "proj-1", Name: "Remove old wallpaper", Status: models.StatusPending,
	})
	require.NoError(t, err)

	path := "/api/tasks/" + task.ID.Hex()

	recorder := doRequest(t, router, http.MethodDelete, path, models.RoleTeamLeader, nil)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = doRequest(t, router, http.MethodDelete, path, models.RoleTeamLeader, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

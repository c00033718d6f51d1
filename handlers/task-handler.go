package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Yohan-Helitha/DesynFlow-sub000/logging"
	"github.com/Yohan-Helitha/DesynFlow-sub000/middleware"
	"github.com/Yohan-Helitha/DesynFlow-sub000/models"
	"github.com/Yohan-Helitha/DesynFlow-sub000/services"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskHandler struct {
	service     *services.TaskService
	assignments *services.AssignmentService
	progress    *services.ProgressService
}

func NewTaskHandler(service *services.TaskService, assignments *services.AssignmentService, progress *services.ProgressService) *TaskHandler {
	return &TaskHandler{
		service:     service,
		assignments: assignments,
		progress:    progress,
	}
}

// taskResponse wraps a task together with the soft assignment warning so the
// UI can show it without blocking the action.
type taskResponse struct {
	Task    *models.Task `json:"task"`
	Warning bool         `json:"warning,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// statusForError maps the domain error taxonomy onto HTTP status codes. The
// specific error message is always passed through, validation detail is never
// masked by a catch-all.
func statusForError(err error) int {
	switch models.KindOf(err) {
	case models.KindValidation, models.KindRange:
		return http.StatusBadRequest
	case models.KindReference:
		return http.StatusUnprocessableEntity
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindInvalidTransition, models.KindUnavailable:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logging.Logger.Errorf("Event ID: HANDLER_INTERNAL_ERROR, Description: %v", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func taskIDFromRequest(r *http.Request) (primitive.ObjectID, error) {
	vars := mux.Vars(r)
	return primitive.ObjectIDFromHex(vars["taskID"])
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	if err := middleware.RequireRole(r, models.RoleTeamLeader, models.RoleProjectManager); err != nil {
		http.Error(w, "Access forbidden: insufficient permissions", http.StatusForbidden)
		return
	}

	var input services.CreateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	task, resolution, err := h.service.CreateTask(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := taskResponse{Task: task}
	if resolution != nil && resolution.Warning {
		resp.Warning = true
		resp.Reason = resolution.Reason
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	if err := middleware.RequireRole(r, models.RoleTeamLeader, models.RoleTeamMember, models.RoleProjectManager); err != nil {
		http.Error(w, "Access forbidden: insufficient permissions", http.StatusForbidden)
		return
	}

	id, err := taskIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid task ID format", http.StatusBadRequest)
		return
	}

	task, err := h.service.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	if err := middleware.RequireRole(r, models.RoleTeamLeader, models.RoleProjectManager); err != nil {
		http.Error(w, "Access forbidden: insufficient permissions", http.StatusForbidden)
		return
	}

	id, err := taskIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid task ID format", http.StatusBadRequest)
		return
	}

	var patch services.UpdateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	task, resolution, err := h.service.UpdateTask(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := taskResponse{Task: task}
	if resolution != nil && resolution.Warning {
		resp.Warning = true
		resp.Reason = resolution.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := middleware.RequireRole(r, models.RoleTeamLeader, models.RoleProjectManager); err != nil {
		http.Error(w, "Access forbidden: insufficient permissions", http.StatusForbidden)
		return
	}

	id, err := taskIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid task ID format", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteTask(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) GetTasksByProject(w http.ResponseWriter, r *http.Request) {
	if err := middleware.RequireRole(r, models.RoleTeamLeader, models.RoleTeamMember, models.RoleProjectManager); err != nil {
		http.Error(w, "Access forbidden: insufficient permissions", http.StatusForbidden)
		return
	}

	projectID := mux.Vars(r)["projectId"]
	if projectID == "" {
		http.Error(w, "Missing project ID", http.StatusBadRequest)
		return
	}

	tasks, err := h.service.ListTasksByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}

	writeJSON(w, http.StatusOK, tasks)
}

// TransitionTask applies a status change. The request body carries the target
// status and, for a move to blocked, the issue description.
func (h *TaskHandler) TransitionTask(w http.ResponseWriter, r *http.Request) {
	if err := middleware.RequireRole(r, models.RoleTeamLeader, models.RoleTeamMember); err != nil {
		http.Error(w, "Access forbidden: insufficient permissions", http.StatusForbidden)
		return
	}

	id, err := taskIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid task ID format", http.StatusBadRequest)
		return
	}

	var request struct {
		Status string `json:"status"`
		Issue  string `json:"issue,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	opts := services.TransitionOptions{Issue: request.Issue}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		opts.Actor = claims.UserID
	}

	task, err := h.service.TransitionTask(r.Context(), id, request.Status, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) GetProjectProgress(w http.ResponseWriter, r *http.Request) {
	if err := middleware.RequireRole(r, models.RoleTeamLeader, models.RoleTeamMember, models.RoleProjectManager); err != nil {
		http.Error(w, "Access forbidden: insufficient permissions", http.StatusForbidden)
		return
	}

	projectID := mux.Vars(r)["projectId"]
	if projectID == "" {
		http.Error(w, "Missing project ID", http.StatusBadRequest)
		return
	}

	progress, err := h.progress.ComputeProjectProgress(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"progress": progress})
}

func (h *TaskHandler) HasUnfinishedTasks(w http.ResponseWriter, r *http.Request) {
	if err := middleware.RequireRole(r, models.RoleTeamLeader, models.RoleTeamMember, models.RoleProjectManager); err != nil {
		http.Error(w, "Access forbidden: insufficient permissions", http.StatusForbidden)
		return
	}

	projectID := mux.Vars(r)["projectId"]
	if projectID == "" {
		http.Error(w, "Missing project ID", http.StatusBadRequest)
		return
	}

	hasUnfinished, err := h.service.HasUnfinishedTasks(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"hasUnfinishedTasks": hasUnfinished})
}

// CheckAssignment exposes the assignment resolver for the member picker, so
// the UI can show availability warnings before the task is saved.
func (h *TaskHandler) CheckAssignment(w http.ResponseWriter, r *http.Request) {
	if err := middleware.RequireRole(r, models.RoleTeamLeader, models.RoleProjectManager); err != nil {
		http.Error(w, "Access forbidden: insufficient permissions", http.StatusForbidden)
		return
	}

	vars := mux.Vars(r)
	projectID := vars["projectId"]
	userID := vars["userID"]
	if projectID == "" || userID == "" {
		http.Error(w, "projectId and userID are required", http.StatusBadRequest)
		return
	}

	resolution, err := h.assignments.Resolve(r.Context(), projectID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resolution)
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/chepyr/go-task-api/internal/db"
	"github.com/chepyr/go-task-api/internal/models"
)

const tasksPath = "/api/v1/tasks/"

/*
handles routes:
- GET /api/v1/tasks - list the caller's tasks
- POST /api/v1/tasks - create a new task
*/
func (h *Handler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTasks(w, r)
	case http.MethodPost:
		h.createTask(w, r)
	default:
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

/*
routes:
- GET /api/v1/tasks/{id}
- PATCH /api/v1/tasks/{id}
- DELETE /api/v1/tasks/{id}
*/
func (h *Handler) HandleTaskByID(w http.ResponseWriter, r *http.Request) {
	taskIDStr := strings.TrimPrefix(r.URL.Path, tasksPath)
	if taskIDStr == "" {
		sendError(w, "task id is required", http.StatusBadRequest)
		return
	}
	taskID, err := uuid.Parse(taskIDStr)
	if err != nil {
		sendError(w, "task id must be a valid uuid", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getTask(w, r, taskID)
	case http.MethodPatch:
		h.updateTask(w, r, taskID)
	case http.MethodDelete:
		h.deleteTask(w, r, taskID)
	default:
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	tasks, err := h.TaskRepo.ListByUser(ctx, session.UserID)
	if err != nil {
		h.internalError(w, r, err, "failed to list tasks")
		return
	}
	sendJSON(w, http.StatusOK, tasks)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}

	var input struct {
		Title       string   `json:"title" validate:"required,max=200"`
		Description *string  `json:"description" validate:"omitempty,max=1000"`
		Priority    *string  `json:"priority"`
		Tags        []string `json:"tags"`
		ExpiresAt   *string  `json:"expiresAt"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	input.Title = strings.TrimSpace(input.Title)
	if err := validate.Struct(input); err != nil {
		sendError(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	now := h.now()
	task := &models.Task{
		ID:          uuid.New(),
		UserID:      session.UserID,
		Title:       input.Title,
		Description: input.Description,
		Status:      models.TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.Priority != nil {
		priority, ok := parsePriority(*input.Priority)
		if !ok {
			sendError(w, "Invalid priority value", http.StatusBadRequest)
			return
		}
		task.Priority = &priority
	}
	if input.ExpiresAt != nil {
		expiresAt, err := parseExpiresAt(*input.ExpiresAt)
		if err != nil {
			sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		task.ExpiresAt = &expiresAt
	}
	tagNames, err := normalizeTagNames(input.Tags)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	if err := h.TaskRepo.Create(ctx, task, tagNames); err != nil {
		h.internalError(w, r, err, "failed to create task")
		return
	}

	h.Logger.Info().
		Str("task_id", task.ID.String()).
		Str("user_id", session.UserID.String()).
		Int("tags", len(task.Tags)).
		Msg("task created")
	h.WSHub.BroadcastTaskEvent(session.UserID, EventTaskCreated, task)
	w.Header().Set("Location", tasksPath+task.ID.String())
	sendJSON(w, http.StatusOK, task)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	task, err := h.TaskRepo.GetByID(ctx, session.UserID, taskID)
	if errors.Is(err, db.ErrNotFound) {
		sendError(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internalError(w, r, err, "failed to get task")
		return
	}
	sendJSON(w, http.StatusOK, task)
}

type updateTaskInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	Priority    *string   `json:"priority"`
	Tags        *[]string `json:"tags"`
	ExpiresAt   *string   `json:"expiresAt"`
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}

	var input updateTaskInput
	if err := decodeJSON(w, r, &input); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	patch, err := parseTaskUpdate(input)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	now := h.now()
	task, err := h.TaskRepo.Update(ctx, session.UserID, taskID, func(task *models.Task) []string {
		return patch.apply(task, now)
	})
	if errors.Is(err, db.ErrNotFound) {
		sendError(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internalError(w, r, err, "failed to update task")
		return
	}

	h.Logger.Info().
		Str("task_id", task.ID.String()).
		Str("status", string(task.Status)).
		Bool("tags_replaced", patch.tags != nil).
		Msg("task updated")
	h.WSHub.BroadcastTaskEvent(session.UserID, EventTaskUpdated, task)
	sendJSON(w, http.StatusOK, task)
}

// taskPatch is a validated update request. Nil fields are left alone.
type taskPatch struct {
	title       *string
	description *string
	status      *models.TaskStatus
	priority    *models.TaskPriority
	expiresAt   *time.Time
	// nil keeps the tag links, non-nil replaces them
	tags []string
}

func parseTaskUpdate(input updateTaskInput) (taskPatch, error) {
	var patch taskPatch
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return taskPatch{}, errors.New("title cannot be empty")
		}
		if utf8.RuneCountInString(title) > maxTitleLen {
			return taskPatch{}, fmt.Errorf("title too long (max %d chars)", maxTitleLen)
		}
		patch.title = &title
	}
	if input.Description != nil {
		desc := strings.TrimSpace(*input.Description)
		if utf8.RuneCountInString(desc) > maxDescriptionLen {
			return taskPatch{}, fmt.Errorf("description too long (max %d chars)", maxDescriptionLen)
		}
		patch.description = &desc
	}
	if input.Priority != nil {
		priority, ok := parsePriority(*input.Priority)
		if !ok {
			return taskPatch{}, errors.New("invalid priority value")
		}
		patch.priority = &priority
	}
	if input.ExpiresAt != nil {
		expiresAt, err := parseExpiresAt(*input.ExpiresAt)
		if err != nil {
			return taskPatch{}, err
		}
		patch.expiresAt = &expiresAt
	}
	if input.Status != nil {
		status := normalizeStatus(*input.Status)
		if status == "" {
			return taskPatch{}, errors.New("invalid status value")
		}
		patch.status = &status
	}
	if input.Tags != nil {
		names, err := normalizeTagNames(*input.Tags)
		if err != nil {
			return taskPatch{}, err
		}
		patch.tags = names
	}
	return patch, nil
}

// apply copies the patched fields onto task and returns the tag names to link.
func (p taskPatch) apply(task *models.Task, now time.Time) []string {
	if p.title != nil {
		task.Title = *p.title
	}
	if p.description != nil {
		desc := *p.description
		task.Description = &desc
	}
	if p.priority != nil {
		priority := *p.priority
		task.Priority = &priority
	}
	if p.expiresAt != nil {
		expiresAt := *p.expiresAt
		task.ExpiresAt = &expiresAt
	}
	if p.status != nil {
		task.ApplyStatus(*p.status, now)
	}
	task.UpdatedAt = now
	return p.tags
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	existingTask, err := h.TaskRepo.GetByID(ctx, session.UserID, taskID)
	if errors.Is(err, db.ErrNotFound) {
		sendError(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internalError(w, r, err, "failed to load task for delete")
		return
	}

	err = h.TaskRepo.Delete(ctx, session.UserID, taskID)
	if errors.Is(err, db.ErrNotFound) {
		sendError(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internalError(w, r, err, "failed to delete task")
		return
	}

	h.Logger.Info().Str("task_id", taskID.String()).Msg("task deleted")
	h.WSHub.BroadcastTaskEvent(session.UserID, EventTaskDeleted, existingTask)
	sendJSON(w, http.StatusOK, messageResponse{Message: "Task deleted"})
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chepyr/task-store/internal/db"
	"github.com/chepyr/task-store/internal/models"
)

const maxBodyBytes = 1 << 20 // 1MB

// taskRequest is the body of both POST /tasks and PUT /tasks/:id.
// Status and Progress are optional and take their defaults when omitted,
// so an update is always a full replace.
type taskRequest struct {
	Title    string             `json:"title" binding:"required"`
	DueDate  *models.Date       `json:"due_date" binding:"required"`
	Tag      string             `json:"tag" binding:"required"`
	Priority models.Priority    `json:"priority" binding:"required,priority"`
	Status   *models.TaskStatus `json:"status" binding:"omitempty,task_status"`
	Progress *int               `json:"progress"`
}

func (in *taskRequest) toTask(id int64) *models.Task {
	task := &models.Task{
		ID:       id,
		Title:    in.Title,
		DueDate:  *in.DueDate,
		Tag:      in.Tag,
		Priority: in.Priority,
		Status:   models.DefaultTaskStatus,
		Progress: models.DefaultProgress,
	}
	if in.Status != nil && *in.Status != "" {
		task.Status = *in.Status
	}
	if in.Progress != nil {
		task.Progress = *in.Progress
	}
	return task
}

func (h *Handler) bindTask(c *gin.Context) (*taskRequest, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Debug().
			Err(err).
			Msg("failed to bind task")
		abort(c, bindError(err))
		return nil, false
	}
	return &req, true
}

func (h *Handler) taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, newValidationError(fieldError{Field: "id", Message: "must be an integer"}))
		return 0, false
	}
	return id, true
}

// storageError logs err and answers 404 for a missing task, 500 otherwise.
func (h *Handler) storageError(c *gin.Context, op string, err error) {
	if errors.Is(err, db.ErrTaskNotFound) {
		h.Logger.Info().
			Err(err).
			Msg("task not found")
		abort(c, errTaskNotFound)
		return
	}
	h.Logger.Error().
		Err(err).
		Msg("failed to " + op)
	abort(c, newAPIError(http.StatusInternalServerError, "failed to "+op))
}

func (h *Handler) ListTasks(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	tasks, err := h.TaskRepo.List(ctx)
	if err != nil {
		h.storageError(c, "list tasks", err)
		return
	}
	h.Logger.Debug().
		Int("count", len(tasks)).
		Msg("listed tasks")
	c.JSON(http.StatusOK, tasks)
}

func (h *Handler) CreateTask(c *gin.Context) {
	req, ok := h.bindTask(c)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	task := req.toTask(0)
	if err := h.TaskRepo.Create(ctx, task); err != nil {
		h.storageError(c, "create task", err)
		return
	}
	h.Logger.Info().
		Int64("task_id", task.ID).
		Msg("created task")

	h.WSHub.Broadcast(TaskEvent{Event: EventTaskCreated, TaskID: task.ID, Task: task})
	c.JSON(http.StatusOK, task)
}

func (h *Handler) GetTask(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	task, err := h.TaskRepo.GetByID(ctx, id)
	if err != nil {
		h.storageError(c, "get task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) UpdateTask(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}
	req, ok := h.bindTask(c)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	task := req.toTask(id)
	if err := h.TaskRepo.Update(ctx, task); err != nil {
		h.storageError(c, "update task", err)
		return
	}
	h.Logger.Info().
		Int64("task_id", task.ID).
		Msg("updated task")

	h.WSHub.Broadcast(TaskEvent{Event: EventTaskUpdated, TaskID: task.ID, Task: task})
	c.JSON(http.StatusOK, task)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.TaskRepo.Delete(ctx, id); err != nil {
		h.storageError(c, "delete task", err)
		return
	}
	h.Logger.Info().
		Int64("task_id", id).
		Msg("deleted task")

	h.WSHub.Broadcast(TaskEvent{Event: EventTaskDeleted, TaskID: id})
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

func (h *Handler) Ping(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.TaskRepo.Ping(ctx); err != nil {
		h.storageError(c, "ping store", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

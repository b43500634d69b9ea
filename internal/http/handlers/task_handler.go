// Task HTTP handlers.
//
// This file exposes the personal task list:
//   - POST   /tasks        (create)
//   - GET    /tasks        (list, optional ?category=)
//   - PUT    /tasks/{id}   (partial update)
//   - DELETE /tasks/{id}   (delete)
//
// Tasks of other users are reported as not found.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/services"
)

// CreateTaskRequest is the JSON payload for a new task.
type CreateTaskRequest struct {
	Title    string `json:"title"              binding:"required" example:"buy milk"`
	Category string `json:"category,omitempty" example:"home"`
}

// UpdateTaskRequest is a partial task update; absent fields are unchanged.
type UpdateTaskRequest struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	Category  *string `json:"category,omitempty"`
}

// ListTasksResponse wraps the caller's tasks.
type ListTasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

// CreateTask godoc
// @ID          createTask
// @Summary     Create a task
// @Tags        Tasks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateTaskRequest  true  "Task"
// @Success     201   {object}  domain.Task
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /tasks [post]
func (h *Handlers) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title is required")
		return
	}
	t, err := h.tasks.Create(c.Request.Context(), userID(c), req.Title, req.Category)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

// ListTasks godoc
// @ID          listTasks
// @Summary     List tasks
// @Tags        Tasks
// @Produce     json
// @Security    BearerAuth
// @Param       category  query     string  false  "Only this category"
// @Success     200       {object}  handlers.ListTasksResponse
// @Router      /tasks [get]
func (h *Handlers) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context(), userID(c), c.Query("category"))
	if err != nil {
		failErr(c, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	ok(c, http.StatusOK, ListTasksResponse{Tasks: tasks})
}

// UpdateTask godoc
// @ID          updateTask
// @Summary     Update a task
// @Tags        Tasks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                      true  "Task ID"
// @Param       body  body      handlers.UpdateTaskRequest  true  "Fields to change"
// @Success     200   {object}  domain.Task
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /tasks/{id} [put]
func (h *Handlers) UpdateTask(c *gin.Context) {
	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	t, err := h.tasks.Update(c.Request.Context(), userID(c), c.Param("id"), services.TaskPatch{
		Title:     req.Title,
		Completed: req.Completed,
		Category:  req.Category,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// DeleteTask godoc
// @ID          deleteTask
// @Summary     Delete a task
// @Tags        Tasks
// @Security    BearerAuth
// @Param       id   path  string  true  "Task ID"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /tasks/{id} [delete]
func (h *Handlers) DeleteTask(c *gin.Context) {
	if err := h.tasks.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

package handler

import (
	"net/http"
	"strconv"

	"ComputeMarket/internal/locks"
	"ComputeMarket/internal/service"

	"github.com/gin-gonic/gin"
)

// POST /api/v1/tasks/publish
func (h *Handler) PublishTask(c *gin.Context) {
	var req service.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	task, validationErrs, err := h.orch.PublishTask(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish task failed", "detail": err.Error()})
		return
	}
	if len(validationErrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": validationErrs})
		return
	}

	locks.IncrCounter(c.Request.Context(), h.rdb, "tasks", "published")
	c.JSON(http.StatusCreated, gin.H{"workflow_id": task.WorkflowID, "status": task.Status})
}

// GET /api/v1/tasks/:id
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.orch.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get task failed", "detail": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// GET /api/v1/tasks?offset=&limit=
func (h *Handler) ListTasks(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	tasks, total, err := h.orch.ListTasks(c.Request.Context(), offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tasks failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": total, "offset": offset, "limit": limit})
}

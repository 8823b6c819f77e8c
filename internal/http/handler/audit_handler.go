package handler

import (
	"net/http"

	"ComputeMarket/internal/locks"
	"ComputeMarket/internal/service"

	"github.com/gin-gonic/gin"
)

// POST /api/v1/audits/:id/complete
func (h *Handler) CompleteAudit(c *gin.Context) {
	var payload service.AuditResultPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	res, err := h.orch.CompleteAudit(c.Request.Context(), c.Param("id"), &payload)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "complete audit failed", "detail": err.Error()})
		return
	}

	locks.IncrCounter(c.Request.Context(), h.rdb, "audits", "completed")
	resp := gin.H{"audit_id": c.Param("id"), "completed": true}
	if res != nil {
		resp["consensus"] = res
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/v1/audits/pending?auditor=<hotkey>
func (h *Handler) PendingAudits(c *gin.Context) {
	auditor := c.Query("auditor")
	if auditor == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "auditor query parameter is required"})
		return
	}
	units, err := h.orch.PendingAudits(c.Request.Context(), auditor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list pending audits failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": units, "count": len(units)})
}

// GET /api/v1/audits/status/:id —— 任务维度的审计进度
func (h *Handler) AuditStatus(c *gin.Context) {
	total, completed, err := h.orch.AuditProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit status failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"workflow_id": c.Param("id"),
		"total":       total,
		"completed":   completed,
		"pending":     total - completed,
	})
}

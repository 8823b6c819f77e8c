// Package agent 工作节点侧 HTTP 入口：接单、队列状态、健康探测
package agent

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ComputeMarket/internal/chain"
	"ComputeMarket/internal/scheduler"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	sched   *scheduler.Scheduler
	signer  chain.Signer
	maxSkew time.Duration
}

func New(sched *scheduler.Scheduler, signer chain.Signer, maxSkew time.Duration) *Handler {
	return &Handler{sched: sched, signer: signer, maxSkew: maxSkew}
}

func (h *Handler) Register(engine *gin.Engine) {
	v1 := engine.Group("/v1")
	{
		// 两个投递端点等价，编排端按顺序重试
		v1.POST("/train", h.ReceiveJob)
		v1.POST("/workflows/receive", h.ReceiveJob)
		v1.GET("/queue/stats", h.QueueStats)
		v1.GET("/jobs/:id", h.JobStatus)
		v1.POST("/health/heartbeat", h.HealthProbe)
	}
}

type jobRequest struct {
	WorkflowID   string          `json:"workflow_id" binding:"required"`
	WorkflowType string          `json:"workflow_type" binding:"required"`
	WorkflowSpec json.RawMessage `json:"workflow_spec"`
}

// POST /v1/train 与 POST /v1/workflows/receive
func (h *Handler) ReceiveJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	job, err := h.sched.Submit(req.WorkflowID, req.WorkflowType, req.WorkflowSpec)
	if err != nil {
		if errors.Is(err, scheduler.ErrQueueFull) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "queue full, retry later"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": job.JobID, "priority": job.Priority.String(), "status": job.Status})
}

// GET /v1/queue/stats
func (h *Handler) QueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.sched.Stats())
}

// GET /v1/jobs/:id
func (h *Handler) JobStatus(c *gin.Context) {
	job, err := h.sched.Job(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// POST /v1/health/heartbeat —— 编排端的签名探测
func (h *Handler) HealthProbe(c *gin.Context) {
	if err := chain.VerifyRequest(h.signer, "/v1/health/heartbeat", c.Request.Header, h.maxSkew); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "detail": err.Error()})
		return
	}
	stats := h.sched.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"hotkey":    h.signer.Hotkey(),
		"running":   stats.Running,
		"queued":    stats.Queued,
		"timestamp": time.Now().UTC(),
	})
}

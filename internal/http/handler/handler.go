// Package handler 编排端 HTTP 入口（gin）
package handler

import (
	"net/http"
	"time"

	"ComputeMarket/internal/chain"
	"ComputeMarket/internal/registry"
	"ComputeMarket/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Handler struct {
	orch    *service.Orchestrator
	cache   *registry.Cache
	signer  chain.Signer
	maxSkew time.Duration
	db      *pgxpool.Pool
	rdb     *redis.Client
}

func New(orch *service.Orchestrator, cache *registry.Cache, signer chain.Signer,
	maxSkew time.Duration, db *pgxpool.Pool, rdb *redis.Client) *Handler {
	return &Handler{orch: orch, cache: cache, signer: signer, maxSkew: maxSkew, db: db, rdb: rdb}
}

func (h *Handler) Register(engine *gin.Engine) {
	engine.GET("/healthz", h.Healthz)
	engine.GET("/readyz", h.Readyz)

	api := engine.Group("/api/v1")
	{
		api.POST("/tasks/publish", h.PublishTask)
		api.GET("/tasks/:id", h.GetTask)
		api.GET("/tasks", h.ListTasks)

		api.POST("/submissions", h.ReceiveSubmission)

		api.POST("/audits/:id/complete", h.CompleteAudit)
		api.GET("/audits/pending", h.PendingAudits)
		api.GET("/audits/status/:id", h.AuditStatus)

		api.POST("/scores", h.RecordScore)
		api.GET("/scores/:id", h.TaskScores)
		api.GET("/rewards/:id", h.TaskRewards)

		api.GET("/workers", h.ListWorkers)
		api.POST("/heartbeat", h.Heartbeat)
	}
}

// GET /healthz
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /readyz
func (h *Handler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()
	// 简单就绪检查：DB、Redis 都能 ping
	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ready": false, "error": "db ping failed"})
		return
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ready": false, "error": "redis ping failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "timestamp": time.Now().UTC()})
}

package handler

import (
	"net/http"
	"time"

	"ComputeMarket/internal/chain"
	"ComputeMarket/internal/locks"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/workers
func (h *Handler) ListWorkers(c *gin.Context) {
	workers, err := h.orch.ListWorkers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list workers failed", "detail": err.Error()})
		return
	}
	now := time.Now().UTC()
	online := 0
	for _, w := range workers {
		if h.cache.IsOnline(w.Hotkey, now) {
			online++
		}
	}
	c.JSON(http.StatusOK, gin.H{"workers": workers, "total": len(workers), "online": online})
}

type heartbeatRequest struct {
	Hotkey   string `json:"hotkey" binding:"required"`
	Endpoint string `json:"endpoint"`
}

// POST /api/v1/heartbeat（签名接口）——工作节点主动报活，
// 比健康检查轮询更快把节点拉回在线集合
func (h *Handler) Heartbeat(c *gin.Context) {
	if err := chain.VerifyRequest(h.signer, "/api/v1/heartbeat", c.Request.Header, h.maxSkew); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "detail": err.Error()})
		return
	}

	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	if hotkey := c.GetHeader(chain.HeaderHotkey); hotkey != req.Hotkey {
		c.JSON(http.StatusForbidden, gin.H{"error": "hotkey mismatch"})
		return
	}

	now := time.Now().UTC()
	rec, ok := h.cache.Get(req.Hotkey)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown worker, wait for next registry sync"})
		return
	}
	rec.IsOnline = true
	rec.LastHeartbeat = &now
	if req.Endpoint != "" {
		rec.Endpoint = req.Endpoint
	}
	h.cache.Update(rec)
	_ = locks.TouchHeartbeat(c.Request.Context(), h.rdb, req.Hotkey, h.cache.TTL())

	c.JSON(http.StatusOK, gin.H{"hotkey": req.Hotkey, "timestamp": now})
}

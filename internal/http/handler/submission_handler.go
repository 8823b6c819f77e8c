package handler

import (
	"net/http"

	"ComputeMarket/internal/chain"
	"ComputeMarket/internal/domain"
	"ComputeMarket/internal/locks"

	"github.com/gin-gonic/gin"
)

type submissionRequest struct {
	WorkflowID       string  `json:"workflow_id" binding:"required"`
	WorkerHotkey     string  `json:"worker_hotkey" binding:"required"`
	ArtifactURL      string  `json:"artifact_url" binding:"required"`
	FileSizeMB       float64 `json:"file_size_mb"`
	VRAMGB           float64 `json:"vram_gb"`
	InferenceSeconds float64 `json:"inference_seconds"`
}

// POST /api/v1/submissions（签名接口）
func (h *Handler) ReceiveSubmission(c *gin.Context) {
	if err := chain.VerifyRequest(h.signer, "/api/v1/submissions", c.Request.Header, h.maxSkew); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "detail": err.Error()})
		return
	}

	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	// 声明身份必须与签名身份一致
	if hotkey := c.GetHeader(chain.HeaderHotkey); hotkey != req.WorkerHotkey {
		c.JSON(http.StatusForbidden, gin.H{"error": "hotkey mismatch"})
		return
	}

	sub := &domain.Submission{
		WorkflowID:       req.WorkflowID,
		WorkerHotkey:     req.WorkerHotkey,
		ArtifactURL:      req.ArtifactURL,
		FileSizeMB:       req.FileSizeMB,
		VRAMGB:           req.VRAMGB,
		InferenceSeconds: req.InferenceSeconds,
	}
	if err := h.orch.HandleSubmission(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "submission rejected", "detail": err.Error()})
		return
	}

	locks.IncrCounter(c.Request.Context(), h.rdb, "submissions", "received")
	c.JSON(http.StatusOK, gin.H{"submission_id": sub.ID, "workflow_id": sub.WorkflowID})
}

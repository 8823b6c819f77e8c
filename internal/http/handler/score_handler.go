package handler

import (
	"net/http"

	"ComputeMarket/internal/domain"
	"ComputeMarket/internal/locks"

	"github.com/gin-gonic/gin"
)

type scoreRequest struct {
	WorkflowID    string  `json:"workflow_id" binding:"required"`
	WorkerHotkey  string  `json:"worker_hotkey" binding:"required"`
	AuditorHotkey string  `json:"auditor_hotkey" binding:"required"`
	Similarity    float64 `json:"similarity"`
	Quality       float64 `json:"quality"`
	FinalScore    float64 `json:"final_score"`
}

// POST /api/v1/scores
func (h *Handler) RecordScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	score := &domain.Score{
		WorkflowID:    req.WorkflowID,
		WorkerHotkey:  req.WorkerHotkey,
		AuditorHotkey: req.AuditorHotkey,
		Similarity:    req.Similarity,
		Quality:       req.Quality,
		FinalScore:    req.FinalScore,
	}
	res, err := h.orch.RecordScore(c.Request.Context(), score)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record score failed", "detail": err.Error()})
		return
	}

	locks.IncrCounter(c.Request.Context(), h.rdb, "scores", "recorded")
	resp := gin.H{"score_id": score.ID}
	if res != nil {
		resp["consensus"] = res
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/v1/scores/:id —— 任务下每个节点的共识分
func (h *Handler) TaskScores(c *gin.Context) {
	aggregates, err := h.orch.TaskScores(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "task scores failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow_id": c.Param("id"), "workers": aggregates})
}

// GET /api/v1/rewards/:id
func (h *Handler) TaskRewards(c *gin.Context) {
	records, err := h.orch.TaskRewards(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "task rewards failed", "detail": err.Error()})
		return
	}
	total := 0.0
	for _, r := range records {
		total += r.Amount
	}
	c.JSON(http.StatusOK, gin.H{"workflow_id": c.Param("id"), "rewards": records, "total": total})
}

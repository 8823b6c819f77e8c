package domain

import (
	"time"

	"github.com/google/uuid"
)

// Submission 工作节点的结果提交，提交时间用于奖励的时间系数
type Submission struct {
	ID               uuid.UUID `json:"id"`
	WorkflowID       string    `json:"workflow_id"`
	WorkerHotkey     string    `json:"worker_hotkey"`
	ArtifactURL      string    `json:"artifact_url"`
	FileSizeMB       float64   `json:"file_size_mb"`
	VRAMGB           float64   `json:"vram_gb"`
	InferenceSeconds float64   `json:"inference_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

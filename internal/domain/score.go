package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Score 审计评分，只追加不修改
type Score struct {
	ID            uuid.UUID `json:"id"`
	WorkflowID    string    `json:"workflow_id"`
	WorkerHotkey  string    `json:"worker_hotkey"`
	AuditorHotkey string    `json:"auditor_hotkey"`
	Similarity    float64   `json:"similarity"`
	Quality       float64   `json:"quality"`
	FinalScore    float64   `json:"final_score"`
	CreatedAt     time.Time `json:"created_at"`
}

// RewardRecord 奖励记录，按 (workflow, worker, distribution_round) 唯一，
// 分发轮次取自触发法定人数的那条审计单，保证至多一次发放
type RewardRecord struct {
	ID                uuid.UUID       `json:"id"`
	WorkflowID        string          `json:"workflow_id"`
	WorkerHotkey      string          `json:"worker_hotkey"`
	DistributionRound string          `json:"distribution_round"`
	Amount            float64         `json:"amount"`
	Weight            float64         `json:"weight"`
	Score             float64         `json:"score"`
	Detail            json.RawMessage `json:"detail,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

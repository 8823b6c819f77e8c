package domain

import (
	"encoding/json"
	"time"
)

// AuditContext 审计上下文，随审计单下发给审计节点
type AuditContext struct {
	Prompt       string    `json:"prompt"`
	Seed         int64     `json:"seed"`
	BaseModel    string    `json:"base_model"`
	TargetVector []float64 `json:"target_vector"`
}

// AuditUnit 审计单。每个提交先生成一条模板（AuditorHotkey 为空），
// 再按法定人数为每个审计节点克隆一条；克隆完成后不可变
type AuditUnit struct {
	AuditID       string          `json:"audit_id"`
	WorkflowID    string          `json:"workflow_id"`
	WorkerHotkey  string          `json:"worker_hotkey"`
	AuditorHotkey string          `json:"auditor_hotkey"` // 空表示未分配的模板
	ArtifactURL   string          `json:"artifact_url"`
	Context       AuditContext    `json:"context"`
	IsCompleted   bool            `json:"is_completed"`
	Result        json.RawMessage `json:"result,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

package domain

import (
	"encoding/json"
	"time"
)

// JobPriority 工作节点队列优先级
type JobPriority int

const (
	JobPriorityLow JobPriority = iota + 1
	JobPriorityMedium
	JobPriorityHigh
)

func (p JobPriority) String() string {
	switch p {
	case JobPriorityHigh:
		return "high"
	case JobPriorityMedium:
		return "medium"
	}
	return "low"
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// QueuedJob 仅由资源调度器持有并流转状态
type QueuedJob struct {
	JobID        string          `json:"job_id"`
	WorkflowType string          `json:"workflow_type"` // 原始类型串，未知类型进低优先级
	Priority     JobPriority     `json:"priority"`
	Status       JobStatus       `json:"status"`
	Spec         json.RawMessage `json:"spec"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowType 任务类型（封闭枚举，未知类型在发布时拒绝）
type WorkflowType string

const (
	WorkflowTypeTextLora  WorkflowType = "text_lora_creation"
	WorkflowTypeImageLora WorkflowType = "image_lora_creation"
)

// ParseWorkflowType 解析任务类型，未知值返回错误而不是静默降级
func ParseWorkflowType(s string) (WorkflowType, error) {
	switch WorkflowType(s) {
	case WorkflowTypeTextLora, WorkflowTypeImageLora:
		return WorkflowType(s), nil
	}
	return "", fmt.Errorf("unknown workflow type: %q", s)
}

// TaskStatus 任务状态机：draft → announcement → execution → review → reward → ended
type TaskStatus string

const (
	TaskStatusDraft        TaskStatus = "draft"
	TaskStatusAnnouncement TaskStatus = "announcement"
	TaskStatusExecution    TaskStatus = "execution"
	TaskStatusReview       TaskStatus = "review"
	TaskStatusReward       TaskStatus = "reward"
	TaskStatusEnded        TaskStatus = "ended"
)

type Task struct {
	WorkflowID        string          `json:"workflow_id"`        // 任务唯一标识
	WorkflowType      WorkflowType    `json:"workflow_type"`      // 任务类型
	Status            TaskStatus      `json:"status"`             // 当前阶段
	Spec              json.RawMessage `json:"workflow_spec"`      // 任务规格（透传给训练后端）
	AnnouncementStart *time.Time      `json:"announcement_start"` // 公告阶段开始
	ExecutionStart    *time.Time      `json:"execution_start"`    // 执行阶段开始
	ReviewStart       *time.Time      `json:"review_start"`       // 审核阶段开始
	RewardStart       *time.Time      `json:"reward_start"`       // 奖励阶段开始
	WorkflowEnd       *time.Time      `json:"workflow_end"`       // 任务结束时间
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

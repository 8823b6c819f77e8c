package domain

import (
	"time"

	"github.com/google/uuid"
)

type TaskAssignment struct {
	ID           uuid.UUID `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	WorkerHotkey string    `json:"worker_hotkey"`
	Status       string    `json:"status"` // assigned/delivered/failed/pending
	AssignedAt   time.Time `json:"assigned_at"`
}

package repo

import (
	"context"

	"ComputeMarket/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HasAssignment 判断 (workflow, worker) 是否已有派单记录
func HasAssignment(ctx context.Context, db *pgxpool.Pool, workflowID, workerHotkey string) (bool, error) {
	var n int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM task_assignments WHERE workflow_id=$1 AND worker_hotkey=$2
	`, workflowID, workerHotkey).Scan(&n)
	return n > 0, err
}

// InsertAssignment 记录一次派单，冲突（重复派单）视为无操作
func InsertAssignment(ctx context.Context, db *pgxpool.Pool, a *domain.TaskAssignment) error {
	_, err := db.Exec(ctx, `
		INSERT INTO task_assignments (id, workflow_id, worker_hotkey, status, assigned_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (workflow_id, worker_hotkey) DO NOTHING
	`, a.ID, a.WorkflowID, a.WorkerHotkey, a.Status)
	return err
}

// UpdateAssignmentStatus 更新派单投递结果 delivered/failed/pending
func UpdateAssignmentStatus(ctx context.Context, db *pgxpool.Pool, id uuid.UUID, status string) error {
	_, err := db.Exec(ctx, `
		UPDATE task_assignments SET status=$2 WHERE id=$1
	`, id, status)
	return err
}

package repo

import (
	"context"
	"errors"

	"ComputeMarket/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `workflow_id, workflow_type, status, workflow_spec,
        announcement_start, execution_start, review_start, reward_start, workflow_end,
        created_at, updated_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.WorkflowID, &t.WorkflowType, &t.Status, &t.Spec,
		&t.AnnouncementStart, &t.ExecutionStart, &t.ReviewStart, &t.RewardStart, &t.WorkflowEnd,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// InsertTask 向 tasks 表插入一条新任务
func InsertTask(ctx context.Context, db *pgxpool.Pool, t *domain.Task) error {
	_, err := db.Exec(ctx, `
		INSERT INTO tasks (workflow_id, workflow_type, status, workflow_spec,
			announcement_start, execution_start, review_start, reward_start, workflow_end,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, t.WorkflowID, t.WorkflowType, t.Status, t.Spec,
		t.AnnouncementStart, t.ExecutionStart, t.ReviewStart, t.RewardStart, t.WorkflowEnd)
	return err
}

// GetTaskByWorkflowID 查询单个任务，不存在返回 (nil, nil)
func GetTaskByWorkflowID(ctx context.Context, db *pgxpool.Pool, workflowID string) (*domain.Task, error) {
	row := db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE workflow_id=$1`, workflowID)
	return scanTask(row)
}

// ListActiveTasks 列出所有未结束且已发布的任务（生命周期循环的扫描对象）
func ListActiveTasks(ctx context.Context, db *pgxpool.Pool) ([]domain.Task, error) {
	rows, err := db.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status IN ('announcement','execution','review','reward')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListTasks 分页列出任务
func ListTasks(ctx context.Context, db *pgxpool.Pool, offset, limit int) ([]domain.Task, int, error) {
	var total int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		ORDER BY created_at DESC OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

// UpdateTaskStatus 更新任务状态
func UpdateTaskStatus(ctx context.Context, db *pgxpool.Pool, workflowID string, status domain.TaskStatus) error {
	_, err := db.Exec(ctx, `
		UPDATE tasks SET status=$2, updated_at=NOW() WHERE workflow_id=$1
	`, workflowID, status)
	return err
}

// PublishTask 将 draft 任务置为 announcement 并盖上四个阶段边界
func PublishTask(ctx context.Context, db *pgxpool.Pool, t *domain.Task) error {
	_, err := db.Exec(ctx, `
		UPDATE tasks
		SET status=$2, announcement_start=$3, execution_start=$4,
		    review_start=$5, reward_start=$6, workflow_end=$7, updated_at=NOW()
		WHERE workflow_id=$1
	`, t.WorkflowID, t.Status, t.AnnouncementStart, t.ExecutionStart, t.ReviewStart, t.RewardStart, t.WorkflowEnd)
	return err
}

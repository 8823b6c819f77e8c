package repo

import (
	"context"
	"errors"

	"ComputeMarket/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InsertSubmission 保存工作节点的结果提交
func InsertSubmission(ctx context.Context, db *pgxpool.Pool, s *domain.Submission) error {
	_, err := db.Exec(ctx, `
		INSERT INTO submissions (id, workflow_id, worker_hotkey, artifact_url,
			file_size_mb, vram_gb, inference_seconds, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.WorkflowID, s.WorkerHotkey, s.ArtifactURL,
		s.FileSizeMB, s.VRAMGB, s.InferenceSeconds, s.SubmittedAt)
	return err
}

// LatestSubmission 取某节点对某任务最近的一次提交，不存在返回 (nil, nil)
func LatestSubmission(ctx context.Context, db *pgxpool.Pool, workflowID, workerHotkey string) (*domain.Submission, error) {
	row := db.QueryRow(ctx, `
		SELECT id, workflow_id, worker_hotkey, artifact_url,
		       file_size_mb, vram_gb, inference_seconds, submitted_at
		FROM submissions
		WHERE workflow_id=$1 AND worker_hotkey=$2
		ORDER BY submitted_at DESC LIMIT 1
	`, workflowID, workerHotkey)
	var s domain.Submission
	err := row.Scan(&s.ID, &s.WorkflowID, &s.WorkerHotkey, &s.ArtifactURL,
		&s.FileSizeMB, &s.VRAMGB, &s.InferenceSeconds, &s.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

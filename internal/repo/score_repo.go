package repo

import (
	"context"

	"ComputeMarket/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InsertScore 追加一条评分（只增不改）
func InsertScore(ctx context.Context, db *pgxpool.Pool, s *domain.Score) error {
	_, err := db.Exec(ctx, `
		INSERT INTO scores (id, workflow_id, worker_hotkey, auditor_hotkey,
			similarity, quality, final_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.WorkflowID, s.WorkerHotkey, s.AuditorHotkey,
		s.Similarity, s.Quality, s.FinalScore, s.CreatedAt)
	return err
}

// ListScoresForTask 某任务的全部评分，按提交顺序
func ListScoresForTask(ctx context.Context, db *pgxpool.Pool, workflowID string) ([]domain.Score, error) {
	rows, err := db.Query(ctx, `
		SELECT id, workflow_id, worker_hotkey, auditor_hotkey,
		       similarity, quality, final_score, created_at
		FROM scores WHERE workflow_id=$1 ORDER BY created_at
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Score
	for rows.Next() {
		var s domain.Score
		if err := rows.Scan(&s.ID, &s.WorkflowID, &s.WorkerHotkey, &s.AuditorHotkey,
			&s.Similarity, &s.Quality, &s.FinalScore, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecentFinalScores 某节点最近 limit 条 final_score（选择器权重输入）
func RecentFinalScores(ctx context.Context, db *pgxpool.Pool, workerHotkey string, limit int) ([]float64, error) {
	rows, err := db.Query(ctx, `
		SELECT final_score FROM scores
		WHERE worker_hotkey=$1 ORDER BY created_at DESC LIMIT $2
	`, workerHotkey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

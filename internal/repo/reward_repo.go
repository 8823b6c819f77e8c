package repo

import (
	"context"

	"ComputeMarket/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RoundRecorded 某分发轮次是否已经落账（幂等闸门）
func RoundRecorded(ctx context.Context, db *pgxpool.Pool, workflowID, round string) (bool, error) {
	var n int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM reward_records
		WHERE workflow_id=$1 AND distribution_round=$2
	`, workflowID, round).Scan(&n)
	return n > 0, err
}

// InsertRewardRecord 追加奖励记录；同轮次重复写入由唯一约束吸收
func InsertRewardRecord(ctx context.Context, db *pgxpool.Pool, r *domain.RewardRecord) error {
	_, err := db.Exec(ctx, `
		INSERT INTO reward_records (id, workflow_id, worker_hotkey, distribution_round,
			amount, weight, score, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (workflow_id, worker_hotkey, distribution_round) DO NOTHING
	`, r.ID, r.WorkflowID, r.WorkerHotkey, r.DistributionRound,
		r.Amount, r.Weight, r.Score, r.Detail, r.CreatedAt)
	return err
}

// ListRewardsForTask 某任务的全部奖励记录
func ListRewardsForTask(ctx context.Context, db *pgxpool.Pool, workflowID string) ([]domain.RewardRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT id, workflow_id, worker_hotkey, distribution_round,
		       amount, weight, score, detail, created_at
		FROM reward_records WHERE workflow_id=$1 ORDER BY created_at
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RewardRecord
	for rows.Next() {
		var r domain.RewardRecord
		if err := rows.Scan(&r.ID, &r.WorkflowID, &r.WorkerHotkey, &r.DistributionRound,
			&r.Amount, &r.Weight, &r.Score, &r.Detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SumWeightsByWorker 全部任务累计的最终权重（权重同步用）
func SumWeightsByWorker(ctx context.Context, db *pgxpool.Pool) (map[string]float64, error) {
	rows, err := db.Query(ctx, `
		SELECT worker_hotkey, SUM(weight) FROM reward_records GROUP BY worker_hotkey
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var hotkey string
		var w float64
		if err := rows.Scan(&hotkey, &w); err != nil {
			return nil, err
		}
		out[hotkey] = w
	}
	return out, rows.Err()
}

package repo

import (
	"context"
	"errors"

	"ComputeMarket/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GetWorker 查询工作节点档案，不存在返回 (nil, nil)
func GetWorker(ctx context.Context, db *pgxpool.Pool, hotkey string) (*domain.WorkerRecord, error) {
	row := db.QueryRow(ctx, `
		SELECT hotkey, stake, reputation, is_active, is_online, COALESCE(endpoint, ''),
		       last_heartbeat, consecutive_failures, last_failure_at, updated_at
		FROM workers WHERE hotkey=$1
	`, hotkey)
	var w domain.WorkerRecord
	err := row.Scan(&w.Hotkey, &w.Stake, &w.Reputation, &w.IsActive, &w.IsOnline, &w.Endpoint,
		&w.LastHeartbeat, &w.ConsecutiveFailures, &w.LastFailureAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// UpsertWorker 建档或整行刷新（软状态，永不删除）
func UpsertWorker(ctx context.Context, db *pgxpool.Pool, w *domain.WorkerRecord) error {
	_, err := db.Exec(ctx, `
		INSERT INTO workers (hotkey, stake, reputation, is_active, is_online, endpoint,
			last_heartbeat, consecutive_failures, last_failure_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (hotkey) DO UPDATE SET
			stake=EXCLUDED.stake,
			reputation=EXCLUDED.reputation,
			is_active=EXCLUDED.is_active,
			is_online=EXCLUDED.is_online,
			endpoint=EXCLUDED.endpoint,
			last_heartbeat=EXCLUDED.last_heartbeat,
			consecutive_failures=EXCLUDED.consecutive_failures,
			last_failure_at=EXCLUDED.last_failure_at,
			updated_at=NOW()
	`, w.Hotkey, w.Stake, w.Reputation, w.IsActive, w.IsOnline, w.Endpoint,
		w.LastHeartbeat, w.ConsecutiveFailures, w.LastFailureAt)
	return err
}

// UpdateWorkerReputation 只更新声誉分
func UpdateWorkerReputation(ctx context.Context, db *pgxpool.Pool, hotkey string, reputation float64) error {
	_, err := db.Exec(ctx, `
		UPDATE workers SET reputation=$2, updated_at=NOW() WHERE hotkey=$1
	`, hotkey, reputation)
	return err
}

// ListWorkers 列出全部档案
func ListWorkers(ctx context.Context, db *pgxpool.Pool) ([]domain.WorkerRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT hotkey, stake, reputation, is_active, is_online, COALESCE(endpoint, ''),
		       last_heartbeat, consecutive_failures, last_failure_at, updated_at
		FROM workers ORDER BY hotkey
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.WorkerRecord
	for rows.Next() {
		var w domain.WorkerRecord
		if err := rows.Scan(&w.Hotkey, &w.Stake, &w.Reputation, &w.IsActive, &w.IsOnline, &w.Endpoint,
			&w.LastHeartbeat, &w.ConsecutiveFailures, &w.LastFailureAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Init(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	//连接测试
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return pool, nil
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
            workflow_id TEXT PRIMARY KEY,
            workflow_type TEXT NOT NULL,
            status TEXT NOT NULL,
            workflow_spec JSONB NOT NULL,
            announcement_start TIMESTAMPTZ,
            execution_start TIMESTAMPTZ,
            review_start TIMESTAMPTZ,
            reward_start TIMESTAMPTZ,
            workflow_end TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS workers (
            hotkey TEXT PRIMARY KEY,
            stake DOUBLE PRECISION NOT NULL DEFAULT 0,
            reputation DOUBLE PRECISION NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT FALSE,
            is_online BOOLEAN NOT NULL DEFAULT FALSE,
            endpoint TEXT,
            last_heartbeat TIMESTAMPTZ,
            consecutive_failures INT NOT NULL DEFAULT 0,
            last_failure_at TIMESTAMPTZ,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS task_assignments (
            id UUID PRIMARY KEY,
            workflow_id TEXT NOT NULL REFERENCES tasks(workflow_id),
            worker_hotkey TEXT NOT NULL,
            status TEXT NOT NULL,
            assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (workflow_id, worker_hotkey)
        );`,
		`CREATE TABLE IF NOT EXISTS submissions (
            id UUID PRIMARY KEY,
            workflow_id TEXT NOT NULL REFERENCES tasks(workflow_id),
            worker_hotkey TEXT NOT NULL,
            artifact_url TEXT NOT NULL,
            file_size_mb DOUBLE PRECISION NOT NULL DEFAULT 0,
            vram_gb DOUBLE PRECISION NOT NULL DEFAULT 0,
            inference_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
            submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS audit_units (
            audit_id TEXT PRIMARY KEY,
            workflow_id TEXT NOT NULL REFERENCES tasks(workflow_id),
            worker_hotkey TEXT NOT NULL,
            auditor_hotkey TEXT,
            artifact_url TEXT NOT NULL,
            context JSONB NOT NULL,
            is_completed BOOLEAN NOT NULL DEFAULT FALSE,
            result JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            completed_at TIMESTAMPTZ
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_triple
            ON audit_units(workflow_id, worker_hotkey, auditor_hotkey)
            WHERE auditor_hotkey IS NOT NULL;`,
		`CREATE TABLE IF NOT EXISTS scores (
            id UUID PRIMARY KEY,
            workflow_id TEXT NOT NULL,
            worker_hotkey TEXT NOT NULL,
            auditor_hotkey TEXT NOT NULL,
            similarity DOUBLE PRECISION NOT NULL,
            quality DOUBLE PRECISION NOT NULL,
            final_score DOUBLE PRECISION NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS reward_records (
            id UUID PRIMARY KEY,
            workflow_id TEXT NOT NULL,
            worker_hotkey TEXT NOT NULL,
            distribution_round TEXT NOT NULL,
            amount DOUBLE PRECISION NOT NULL,
            weight DOUBLE PRECISION NOT NULL,
            score DOUBLE PRECISION NOT NULL,
            detail JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (workflow_id, worker_hotkey, distribution_round)
        );`,
	}
	for _, q := range ddl {
		if _, err := pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

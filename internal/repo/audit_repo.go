package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ComputeMarket/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auditColumns = `audit_id, workflow_id, worker_hotkey, COALESCE(auditor_hotkey, ''),
        artifact_url, context, is_completed, result, created_at, completed_at`

func scanAuditUnit(row pgx.Row) (*domain.AuditUnit, error) {
	var u domain.AuditUnit
	var ctxRaw []byte
	err := row.Scan(&u.AuditID, &u.WorkflowID, &u.WorkerHotkey, &u.AuditorHotkey,
		&u.ArtifactURL, &ctxRaw, &u.IsCompleted, &u.Result, &u.CreatedAt, &u.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(ctxRaw, &u.Context); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanAuditUnits(rows pgx.Rows) ([]domain.AuditUnit, error) {
	defer rows.Close()
	var out []domain.AuditUnit
	for rows.Next() {
		u, err := scanAuditUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// InsertAuditUnit 写入审计单（模板或克隆）。auditor 为空串时存 NULL，
// 克隆撞上 (workflow, worker, auditor) 唯一索引时视为无操作
func InsertAuditUnit(ctx context.Context, db *pgxpool.Pool, u *domain.AuditUnit) error {
	ctxRaw, err := json.Marshal(u.Context)
	if err != nil {
		return err
	}
	var auditor any
	if u.AuditorHotkey != "" {
		auditor = u.AuditorHotkey
	}
	_, err = db.Exec(ctx, `
		INSERT INTO audit_units (audit_id, workflow_id, worker_hotkey, auditor_hotkey,
			artifact_url, context, is_completed, result, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`, u.AuditID, u.WorkflowID, u.WorkerHotkey, auditor,
		u.ArtifactURL, ctxRaw, u.IsCompleted, u.Result, u.CreatedAt, u.CompletedAt)
	return err
}

func GetAuditUnit(ctx context.Context, db *pgxpool.Pool, auditID string) (*domain.AuditUnit, error) {
	row := db.QueryRow(ctx, `SELECT `+auditColumns+` FROM audit_units WHERE audit_id=$1`, auditID)
	return scanAuditUnit(row)
}

// ListUnassignedUnits 列出某任务下尚未分配审计者的模板
func ListUnassignedUnits(ctx context.Context, db *pgxpool.Pool, workflowID string) ([]domain.AuditUnit, error) {
	rows, err := db.Query(ctx, `
		SELECT `+auditColumns+` FROM audit_units
		WHERE workflow_id=$1 AND auditor_hotkey IS NULL
	`, workflowID)
	if err != nil {
		return nil, err
	}
	return scanAuditUnits(rows)
}

// CountAssignedClones 某 (workflow, worker) 已分配的克隆数
func CountAssignedClones(ctx context.Context, db *pgxpool.Pool, workflowID, workerHotkey string) (int, error) {
	var n int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_units
		WHERE workflow_id=$1 AND worker_hotkey=$2 AND auditor_hotkey IS NOT NULL
	`, workflowID, workerHotkey).Scan(&n)
	return n, err
}

// HasClone 判断 (workflow, worker, auditor) 三元组是否已分配
func HasClone(ctx context.Context, db *pgxpool.Pool, workflowID, workerHotkey, auditorHotkey string) (bool, error) {
	var n int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_units
		WHERE workflow_id=$1 AND worker_hotkey=$2 AND auditor_hotkey=$3
	`, workflowID, workerHotkey, auditorHotkey).Scan(&n)
	return n > 0, err
}

// PendingCountForAuditor 审计者未完成的审计单数量（负载均衡输入）
func PendingCountForAuditor(ctx context.Context, db *pgxpool.Pool, auditorHotkey string) (int, error) {
	var n int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_units
		WHERE auditor_hotkey=$1 AND is_completed=FALSE
	`, auditorHotkey).Scan(&n)
	return n, err
}

// ListPendingForAuditor 审计者的待办列表
func ListPendingForAuditor(ctx context.Context, db *pgxpool.Pool, auditorHotkey string) ([]domain.AuditUnit, error) {
	rows, err := db.Query(ctx, `
		SELECT `+auditColumns+` FROM audit_units
		WHERE auditor_hotkey=$1 AND is_completed=FALSE
		ORDER BY created_at
	`, auditorHotkey)
	if err != nil {
		return nil, err
	}
	return scanAuditUnits(rows)
}

// CompletedClones 某 (workflow, worker) 已完成的克隆（法定人数判定）
func CompletedClones(ctx context.Context, db *pgxpool.Pool, workflowID, workerHotkey string) ([]domain.AuditUnit, error) {
	rows, err := db.Query(ctx, `
		SELECT `+auditColumns+` FROM audit_units
		WHERE workflow_id=$1 AND worker_hotkey=$2
		  AND auditor_hotkey IS NOT NULL AND is_completed=TRUE
		ORDER BY completed_at
	`, workflowID, workerHotkey)
	if err != nil {
		return nil, err
	}
	return scanAuditUnits(rows)
}

// CompleteAuditUnit 标记克隆完成并落结果；完成后的克隆不再改写
func CompleteAuditUnit(ctx context.Context, db *pgxpool.Pool, auditID string, result json.RawMessage, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE audit_units SET is_completed=TRUE, result=$2, completed_at=$3
		WHERE audit_id=$1 AND is_completed=FALSE
	`, auditID, result, at)
	return err
}

// AuditStats 某任务的审计完成度
func AuditStats(ctx context.Context, db *pgxpool.Pool, workflowID string) (total, completed int, err error) {
	err = db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_completed)
		FROM audit_units WHERE workflow_id=$1 AND auditor_hotkey IS NOT NULL
	`, workflowID).Scan(&total, &completed)
	return total, completed, err
}

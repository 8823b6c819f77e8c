package repo

import (
	"context"
	"encoding/json"
	"time"

	"ComputeMarket/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store 把包级仓库函数装配成各引擎声明的窄接口
// （引擎只依赖自己包里声明的接口，测试用内存假实现替换）
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) InsertTask(ctx context.Context, t *domain.Task) error {
	return InsertTask(ctx, s.db, t)
}

func (s *Store) GetTask(ctx context.Context, workflowID string) (*domain.Task, error) {
	return GetTaskByWorkflowID(ctx, s.db, workflowID)
}

func (s *Store) ListActiveTasks(ctx context.Context) ([]domain.Task, error) {
	return ListActiveTasks(ctx, s.db)
}

func (s *Store) ListTasks(ctx context.Context, offset, limit int) ([]domain.Task, int, error) {
	return ListTasks(ctx, s.db, offset, limit)
}

func (s *Store) UpdateTaskStatus(ctx context.Context, workflowID string, status domain.TaskStatus) error {
	return UpdateTaskStatus(ctx, s.db, workflowID, status)
}

func (s *Store) PublishTask(ctx context.Context, t *domain.Task) error {
	return PublishTask(ctx, s.db, t)
}

func (s *Store) GetWorker(ctx context.Context, hotkey string) (*domain.WorkerRecord, error) {
	return GetWorker(ctx, s.db, hotkey)
}

func (s *Store) UpsertWorker(ctx context.Context, w *domain.WorkerRecord) error {
	return UpsertWorker(ctx, s.db, w)
}

func (s *Store) UpdateWorkerReputation(ctx context.Context, hotkey string, reputation float64) error {
	return UpdateWorkerReputation(ctx, s.db, hotkey, reputation)
}

func (s *Store) ListWorkers(ctx context.Context) ([]domain.WorkerRecord, error) {
	return ListWorkers(ctx, s.db)
}

func (s *Store) HasAssignment(ctx context.Context, workflowID, workerHotkey string) (bool, error) {
	return HasAssignment(ctx, s.db, workflowID, workerHotkey)
}

func (s *Store) InsertAssignment(ctx context.Context, a *domain.TaskAssignment) error {
	return InsertAssignment(ctx, s.db, a)
}

func (s *Store) UpdateAssignmentStatus(ctx context.Context, id uuid.UUID, status string) error {
	return UpdateAssignmentStatus(ctx, s.db, id, status)
}

func (s *Store) InsertSubmission(ctx context.Context, sub *domain.Submission) error {
	return InsertSubmission(ctx, s.db, sub)
}

func (s *Store) LatestSubmission(ctx context.Context, workflowID, workerHotkey string) (*domain.Submission, error) {
	return LatestSubmission(ctx, s.db, workflowID, workerHotkey)
}

func (s *Store) InsertAuditUnit(ctx context.Context, u *domain.AuditUnit) error {
	return InsertAuditUnit(ctx, s.db, u)
}

func (s *Store) GetAuditUnit(ctx context.Context, auditID string) (*domain.AuditUnit, error) {
	return GetAuditUnit(ctx, s.db, auditID)
}

func (s *Store) ListUnassignedUnits(ctx context.Context, workflowID string) ([]domain.AuditUnit, error) {
	return ListUnassignedUnits(ctx, s.db, workflowID)
}

func (s *Store) CountAssignedClones(ctx context.Context, workflowID, workerHotkey string) (int, error) {
	return CountAssignedClones(ctx, s.db, workflowID, workerHotkey)
}

func (s *Store) HasClone(ctx context.Context, workflowID, workerHotkey, auditorHotkey string) (bool, error) {
	return HasClone(ctx, s.db, workflowID, workerHotkey, auditorHotkey)
}

func (s *Store) PendingCountForAuditor(ctx context.Context, auditorHotkey string) (int, error) {
	return PendingCountForAuditor(ctx, s.db, auditorHotkey)
}

func (s *Store) ListPendingForAuditor(ctx context.Context, auditorHotkey string) ([]domain.AuditUnit, error) {
	return ListPendingForAuditor(ctx, s.db, auditorHotkey)
}

func (s *Store) CompletedClones(ctx context.Context, workflowID, workerHotkey string) ([]domain.AuditUnit, error) {
	return CompletedClones(ctx, s.db, workflowID, workerHotkey)
}

func (s *Store) CompleteAuditUnit(ctx context.Context, auditID string, result json.RawMessage, at time.Time) error {
	return CompleteAuditUnit(ctx, s.db, auditID, result, at)
}

func (s *Store) AuditStats(ctx context.Context, workflowID string) (total, completed int, err error) {
	return AuditStats(ctx, s.db, workflowID)
}

func (s *Store) InsertScore(ctx context.Context, sc *domain.Score) error {
	return InsertScore(ctx, s.db, sc)
}

func (s *Store) ListScoresForTask(ctx context.Context, workflowID string) ([]domain.Score, error) {
	return ListScoresForTask(ctx, s.db, workflowID)
}

func (s *Store) RecentFinalScores(ctx context.Context, workerHotkey string, limit int) ([]float64, error) {
	return RecentFinalScores(ctx, s.db, workerHotkey, limit)
}

func (s *Store) RoundRecorded(ctx context.Context, workflowID, round string) (bool, error) {
	return RoundRecorded(ctx, s.db, workflowID, round)
}

func (s *Store) InsertRewardRecord(ctx context.Context, r *domain.RewardRecord) error {
	return InsertRewardRecord(ctx, s.db, r)
}

func (s *Store) ListRewardsForTask(ctx context.Context, workflowID string) ([]domain.RewardRecord, error) {
	return ListRewardsForTask(ctx, s.db, workflowID)
}

func (s *Store) SumWeightsByWorker(ctx context.Context) (map[string]float64, error) {
	return SumWeightsByWorker(ctx, s.db)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"ComputeMarket/internal/audit"
	"ComputeMarket/internal/consensus"
	"ComputeMarket/internal/domain"
	"ComputeMarket/internal/reward"
	"ComputeMarket/internal/selector"

	"github.com/google/uuid"
)

// 发布请求未指定档期时的默认时长（小时）
const (
	defaultAnnouncementHours = 1
	defaultExecutionHours    = 72
	defaultReviewHours       = 24
	defaultRewardHours       = 24
)

type Store interface {
	PublishTask(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, workflowID string) (*domain.Task, error)
	ListTasks(ctx context.Context, offset, limit int) ([]domain.Task, int, error)
	InsertSubmission(ctx context.Context, sub *domain.Submission) error
	HasAssignment(ctx context.Context, workflowID, workerHotkey string) (bool, error)
	ListWorkers(ctx context.Context) ([]domain.WorkerRecord, error)
	ListRewardsForTask(ctx context.Context, workflowID string) ([]domain.RewardRecord, error)
}

// Orchestrator 把各引擎串成完整的任务流水线：
// 发布 → 派单 → 提交 → 审计 → 共识 → 分发
type Orchestrator struct {
	store       Store
	selector    *selector.Selector
	assigner    *audit.Assigner
	aggregator  *consensus.Aggregator
	distributor *reward.Distributor
	selectNum   int
}

func NewOrchestrator(store Store, sel *selector.Selector, assigner *audit.Assigner,
	aggregator *consensus.Aggregator, distributor *reward.Distributor, selectNum int) *Orchestrator {
	return &Orchestrator{
		store:       store,
		selector:    sel,
		assigner:    assigner,
		aggregator:  aggregator,
		distributor: distributor,
		selectNum:   selectNum,
	}
}

// PublishTask 校验并发布任务。校验失败返回全部错误，
// 发布成功后立刻抽取节点并投递
func (o *Orchestrator) PublishTask(ctx context.Context, req *PublishRequest) (*domain.Task, []string, error) {
	if errs := ValidateTaskCreate(req); len(errs) > 0 {
		return nil, errs, nil
	}

	existing, err := o.store.GetTask(ctx, req.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, []string{fmt.Sprintf("workflow %s already exists", req.WorkflowID)}, nil
	}

	specRaw, err := json.Marshal(req.WorkflowSpec)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	annStart := now
	execStart := annStart.Add(hours(req.AnnouncementDuration, defaultAnnouncementHours))
	reviewStart := execStart.Add(hours(req.ExecutionDuration, defaultExecutionHours))
	rewardStart := reviewStart.Add(hours(req.ReviewDuration, defaultReviewHours))
	end := rewardStart.Add(hours(req.RewardDuration, defaultRewardHours))

	task := &domain.Task{
		WorkflowID:        req.WorkflowID,
		WorkflowType:      domain.WorkflowType(req.WorkflowType),
		Status:            domain.TaskStatusAnnouncement,
		Spec:              specRaw,
		AnnouncementStart: &annStart,
		ExecutionStart:    &execStart,
		ReviewStart:       &reviewStart,
		RewardStart:       &rewardStart,
		WorkflowEnd:       &end,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := o.store.PublishTask(ctx, task); err != nil {
		return nil, nil, err
	}
	log.Printf("task %s published, type=%s execution_start=%s", task.WorkflowID, task.WorkflowType, execStart.Format(time.RFC3339))

	hotkeys := o.selector.SelectWorkers(ctx, task.WorkflowID, o.selectNum)
	if len(hotkeys) > 0 {
		o.selector.AssignTask(ctx, task, hotkeys)
	}
	return task, nil, nil
}

func hours(h, def float64) time.Duration {
	if h <= 0 {
		h = def
	}
	return time.Duration(h * float64(time.Hour))
}

func (o *Orchestrator) GetTask(ctx context.Context, workflowID string) (*domain.Task, error) {
	return o.store.GetTask(ctx, workflowID)
}

func (o *Orchestrator) ListTasks(ctx context.Context, offset, limit int) ([]domain.Task, int, error) {
	return o.store.ListTasks(ctx, offset, limit)
}

// HandleSubmission 受理工作节点的结果提交：
// 只在执行阶段接收，落库后生成审计模板并立即跑一轮克隆分配
func (o *Orchestrator) HandleSubmission(ctx context.Context, sub *domain.Submission) error {
	task, err := o.store.GetTask(ctx, sub.WorkflowID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("workflow %s not found", sub.WorkflowID)
	}
	if task.Status != domain.TaskStatusExecution {
		return fmt.Errorf("workflow %s is in %s phase, not accepting submissions", sub.WorkflowID, task.Status)
	}
	assigned, err := o.store.HasAssignment(ctx, sub.WorkflowID, sub.WorkerHotkey)
	if err != nil {
		return err
	}
	if !assigned {
		return fmt.Errorf("worker %s was not assigned to workflow %s", sub.WorkerHotkey, sub.WorkflowID)
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	if err := o.store.InsertSubmission(ctx, sub); err != nil {
		return err
	}
	log.Printf("submission received: workflow=%s worker=%s artifact=%s", sub.WorkflowID, sub.WorkerHotkey, sub.ArtifactURL)

	auditCtx := buildAuditContext(task)
	if _, err := o.assigner.CreateTemplate(ctx, sub.WorkflowID, sub.WorkerHotkey, sub.ArtifactURL, auditCtx); err != nil {
		return err
	}
	if err := o.assigner.AssignPending(ctx, sub.WorkflowID); err != nil {
		log.Printf("audit assignment for %s failed: %v", sub.WorkflowID, err)
	}
	return nil
}

// buildAuditContext 从任务规格提炼审计上下文。
// 固定随机种子让 Q 个审计者在同一条件下复现推理
func buildAuditContext(task *domain.Task) domain.AuditContext {
	var spec struct {
		Theme        string `json:"theme"`
		TrainingSpec struct {
			BaseModel string `json:"base_model"`
		} `json:"training_spec"`
	}
	_ = json.Unmarshal(task.Spec, &spec)
	return domain.AuditContext{
		Prompt:    spec.Theme,
		Seed:      rand.Int63(),
		BaseModel: spec.TrainingSpec.BaseModel,
	}
}

// AuditResultPayload 审计者上报的评分载荷
type AuditResultPayload struct {
	Similarity float64         `json:"similarity"`
	Quality    float64         `json:"quality"`
	FinalScore float64         `json:"final_score"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// CompleteAudit 回写审计结果并落评分。凑齐法定人数时
// 触发共识与对应轮次的奖励分发
func (o *Orchestrator) CompleteAudit(ctx context.Context, auditID string, payload *AuditResultPayload) (*consensus.Result, error) {
	resultRaw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	unit, err := o.assigner.Complete(ctx, auditID, resultRaw)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, fmt.Errorf("audit %s not found", auditID)
	}
	if unit.AuditorHotkey == "" {
		return nil, fmt.Errorf("audit %s is a template, not an assigned clone", auditID)
	}

	score := &domain.Score{
		ID:            uuid.New(),
		WorkflowID:    unit.WorkflowID,
		WorkerHotkey:  unit.WorkerHotkey,
		AuditorHotkey: unit.AuditorHotkey,
		Similarity:    payload.Similarity,
		Quality:       payload.Quality,
		FinalScore:    payload.FinalScore,
		CreatedAt:     time.Now().UTC(),
	}
	return o.recordAndDistribute(ctx, score, unit.AuditID)
}

// RecordScore 直接落一条评分（给外部打分通道用），共识语义与审计回写一致
func (o *Orchestrator) RecordScore(ctx context.Context, score *domain.Score) (*consensus.Result, error) {
	if score.ID == uuid.Nil {
		score.ID = uuid.New()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now().UTC()
	}
	return o.recordAndDistribute(ctx, score, "")
}

func (o *Orchestrator) recordAndDistribute(ctx context.Context, score *domain.Score, triggerAuditID string) (*consensus.Result, error) {
	res, err := o.aggregator.RecordScore(ctx, score, triggerAuditID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	log.Printf("consensus reached: workflow=%s worker=%s consensus=%.2f round=%s",
		res.WorkflowID, res.WorkerHotkey, res.Consensus, res.Round)
	if _, err := o.distributor.DistributeRound(ctx, res.WorkflowID, res.Round); err != nil {
		log.Printf("reward distribution for round %s failed: %v", res.Round, err)
	}
	return res, nil
}

func (o *Orchestrator) ListWorkers(ctx context.Context) ([]domain.WorkerRecord, error) {
	return o.store.ListWorkers(ctx)
}

func (o *Orchestrator) PendingAudits(ctx context.Context, auditorHotkey string) ([]domain.AuditUnit, error) {
	return o.assigner.PendingFor(ctx, auditorHotkey)
}

func (o *Orchestrator) AuditProgress(ctx context.Context, workflowID string) (total, completed int, err error) {
	return o.assigner.Progress(ctx, workflowID)
}

func (o *Orchestrator) TaskScores(ctx context.Context, workflowID string) ([]consensus.WorkerAggregate, error) {
	return o.aggregator.AggregateForTask(ctx, workflowID)
}

func (o *Orchestrator) TaskRewards(ctx context.Context, workflowID string) ([]domain.RewardRecord, error) {
	return o.store.ListRewardsForTask(ctx, workflowID)
}

// Package audit 负责审计单的生成、克隆分配与完成回写。
// 每份提交生成一个模板审计单，再克隆给 Q 个审计者，
// 审计者通过轮询待办列表领取自己的克隆
package audit

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"ComputeMarket/internal/domain"
	"ComputeMarket/internal/registry"

	"github.com/google/uuid"
)

type Store interface {
	GetWorker(ctx context.Context, hotkey string) (*domain.WorkerRecord, error)
	InsertAuditUnit(ctx context.Context, u *domain.AuditUnit) error
	GetAuditUnit(ctx context.Context, auditID string) (*domain.AuditUnit, error)
	ListUnassignedUnits(ctx context.Context, workflowID string) ([]domain.AuditUnit, error)
	CountAssignedClones(ctx context.Context, workflowID, workerHotkey string) (int, error)
	HasClone(ctx context.Context, workflowID, workerHotkey, auditorHotkey string) (bool, error)
	PendingCountForAuditor(ctx context.Context, auditorHotkey string) (int, error)
	ListPendingForAuditor(ctx context.Context, auditorHotkey string) ([]domain.AuditUnit, error)
	CompleteAuditUnit(ctx context.Context, auditID string, result json.RawMessage, at time.Time) error
	AuditStats(ctx context.Context, workflowID string) (total, completed int, err error)
}

type Assigner struct {
	store  Store
	cache  *registry.Cache
	quorum int
}

func NewAssigner(store Store, cache *registry.Cache, quorum int) *Assigner {
	return &Assigner{store: store, cache: cache, quorum: quorum}
}

// CreateTemplate 为一份提交生成模板审计单（auditor 为空），返回 audit_id
func (a *Assigner) CreateTemplate(ctx context.Context, workflowID, workerHotkey, artifactURL string, auditCtx domain.AuditContext) (string, error) {
	u := domain.AuditUnit{
		AuditID:      uuid.New().String(),
		WorkflowID:   workflowID,
		WorkerHotkey: workerHotkey,
		ArtifactURL:  artifactURL,
		Context:      auditCtx,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.InsertAuditUnit(ctx, &u); err != nil {
		return "", err
	}
	return u.AuditID, nil
}

// candidate 一次分配批内的审计者视图。passCount 记录本批内
// 已塞给该审计者的克隆数，避免一批全落到同一个人头上
type candidate struct {
	hotkey     string
	reputation float64
	pending    int
	passCount  int
}

func (c *candidate) priority() float64 {
	return c.reputation*0.7 - float64(c.pending+c.passCount)*0.3
}

// AssignPending 把任务下所有未凑齐法定人数的审计单克隆出去。
// 重复调用是安全的：三元组 (workflow, worker, auditor) 幂等
func (a *Assigner) AssignPending(ctx context.Context, workflowID string) error {
	templates, err := a.store.ListUnassignedUnits(ctx, workflowID)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return nil
	}

	candidates, err := a.loadCandidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		log.Printf("no online auditors for task %s, will retry on next pass", workflowID)
		return nil
	}

	for _, tpl := range templates {
		assigned, err := a.store.CountAssignedClones(ctx, tpl.WorkflowID, tpl.WorkerHotkey)
		if err != nil {
			log.Printf("count clones for %s/%s failed: %v", tpl.WorkflowID, tpl.WorkerHotkey, err)
			continue
		}
		need := a.quorum - assigned
		if need <= 0 {
			continue
		}
		a.cloneTo(ctx, &tpl, candidates, need)
	}
	return nil
}

func (a *Assigner) loadCandidates(ctx context.Context) ([]*candidate, error) {
	now := time.Now().UTC()
	var out []*candidate
	for _, rec := range a.cache.Online(now) {
		if !rec.IsActive {
			continue
		}
		reputation := rec.Reputation
		if w, err := a.store.GetWorker(ctx, rec.Hotkey); err == nil && w != nil {
			reputation = w.Reputation
		}
		pending, err := a.store.PendingCountForAuditor(ctx, rec.Hotkey)
		if err != nil {
			log.Printf("pending count for %s failed: %v", rec.Hotkey, err)
			continue
		}
		out = append(out, &candidate{hotkey: rec.Hotkey, reputation: reputation, pending: pending})
	}
	return out, nil
}

// cloneTo 按优先级给单个模板克隆 need 份。每个模板重新排序，
// 本批内的 passCount 压低已被多次选中者的优先级
func (a *Assigner) cloneTo(ctx context.Context, tpl *domain.AuditUnit, candidates []*candidate, need int) {
	ranked := make([]*candidate, 0, len(candidates))
	for _, c := range candidates {
		// 不让工作节点审计自己的产物
		if c.hotkey == tpl.WorkerHotkey {
			continue
		}
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := ranked[i].priority(), ranked[j].priority()
		if pi != pj {
			return pi > pj
		}
		return ranked[i].pending < ranked[j].pending
	})

	placed := 0
	for _, c := range ranked {
		if placed >= need {
			break
		}
		exists, err := a.store.HasClone(ctx, tpl.WorkflowID, tpl.WorkerHotkey, c.hotkey)
		if err != nil {
			log.Printf("clone check %s -> %s failed: %v", tpl.AuditID, c.hotkey, err)
			continue
		}
		if exists {
			continue
		}
		clone := domain.AuditUnit{
			AuditID:       uuid.New().String(),
			WorkflowID:    tpl.WorkflowID,
			WorkerHotkey:  tpl.WorkerHotkey,
			AuditorHotkey: c.hotkey,
			ArtifactURL:   tpl.ArtifactURL,
			Context:       tpl.Context,
			CreatedAt:     time.Now().UTC(),
		}
		if err := a.store.InsertAuditUnit(ctx, &clone); err != nil {
			log.Printf("insert clone %s -> %s failed: %v", tpl.AuditID, c.hotkey, err)
			continue
		}
		c.passCount++
		placed++
		log.Printf("audit %s assigned to %s (workflow=%s worker=%s)",
			clone.AuditID, c.hotkey, tpl.WorkflowID, tpl.WorkerHotkey)
	}
	if placed < need {
		log.Printf("audit template %s short of quorum: placed %d of %d", tpl.AuditID, placed, need)
	}
}

// Complete 回写审计结果。已完成的克隆不允许改写
func (a *Assigner) Complete(ctx context.Context, auditID string, result json.RawMessage) (*domain.AuditUnit, error) {
	unit, err := a.store.GetAuditUnit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, nil
	}
	if unit.IsCompleted {
		// 重复上报按无操作处理，返回已有状态
		return unit, nil
	}
	now := time.Now().UTC()
	if err := a.store.CompleteAuditUnit(ctx, auditID, result, now); err != nil {
		return nil, err
	}
	unit.IsCompleted = true
	unit.Result = result
	unit.CompletedAt = &now
	return unit, nil
}

// PendingFor 审计者的待办克隆列表
func (a *Assigner) PendingFor(ctx context.Context, auditorHotkey string) ([]domain.AuditUnit, error) {
	return a.store.ListPendingForAuditor(ctx, auditorHotkey)
}

// Progress 某任务的审计进度
func (a *Assigner) Progress(ctx context.Context, workflowID string) (total, completed int, err error) {
	return a.store.AuditStats(ctx, workflowID)
}

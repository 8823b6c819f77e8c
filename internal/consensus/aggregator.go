// Package consensus 把多个审计者的评分聚合成共识分并更新节点声誉
package consensus

import (
	"context"
	"log"
	"sort"
	"time"

	"ComputeMarket/internal/domain"
)

type Store interface {
	InsertScore(ctx context.Context, s *domain.Score) error
	ListScoresForTask(ctx context.Context, workflowID string) ([]domain.Score, error)
	CompletedClones(ctx context.Context, workflowID, workerHotkey string) ([]domain.AuditUnit, error)
	GetWorker(ctx context.Context, hotkey string) (*domain.WorkerRecord, error)
	UpdateWorkerReputation(ctx context.Context, hotkey string, reputation float64) error
}

type Aggregator struct {
	store  Store
	quorum int
	alpha  float64 // 声誉 EMA 的历史权重
}

func NewAggregator(store Store, quorum int, alpha float64) *Aggregator {
	return &Aggregator{store: store, quorum: quorum, alpha: alpha}
}

// Result 凑齐法定人数后的一次共识结论
type Result struct {
	WorkflowID    string  `json:"workflow_id"`
	WorkerHotkey  string  `json:"worker_hotkey"`
	Consensus     float64 `json:"consensus"`
	Round         string  `json:"round"` // 触发共识的审计单决定分发轮次
	NewReputation float64 `json:"new_reputation"`
	ScoreCount    int     `json:"score_count"`
}

// TrimmedMean 截尾均值：三个及以上样本时各去掉一个最高和最低，
// 不足三个直接取平均
func TrimmedMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if len(sorted) >= 3 {
		sorted = sorted[1 : len(sorted)-1]
	}
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

// RecordScore 落一条评分，再检查该 (workflow, worker) 是否凑齐法定人数。
// 凑齐则返回共识结论，否则返回 nil。triggerAuditID 是触发本次检查的
// 审计单号，直接决定分发轮次；外部打分通道没有审计单号时传空串
func (a *Aggregator) RecordScore(ctx context.Context, score *domain.Score, triggerAuditID string) (*Result, error) {
	if err := a.store.InsertScore(ctx, score); err != nil {
		return nil, err
	}

	clones, err := a.store.CompletedClones(ctx, score.WorkflowID, score.WorkerHotkey)
	if err != nil {
		return nil, err
	}
	if len(clones) < a.quorum {
		return nil, nil
	}

	all, err := a.store.ListScoresForTask(ctx, score.WorkflowID)
	if err != nil {
		return nil, err
	}
	var finals []float64
	for _, s := range all {
		if s.WorkerHotkey == score.WorkerHotkey {
			finals = append(finals, s.FinalScore)
		}
	}
	consensus := TrimmedMean(finals)

	// 轮次号跟随触发共识的审计单：同一批克隆只触发一轮分发。
	// 没有触发单号时退回取最后完成的克隆，完成时间打平按单号决出，
	// 保证重算得到同一个轮次号
	round := "audit_" + triggerAuditID
	if triggerAuditID == "" {
		round = "audit_" + latestClone(clones).AuditID
	}

	newRep, err := a.updateReputation(ctx, score.WorkerHotkey, consensus)
	if err != nil {
		log.Printf("reputation update for %s failed: %v", score.WorkerHotkey, err)
	}

	return &Result{
		WorkflowID:    score.WorkflowID,
		WorkerHotkey:  score.WorkerHotkey,
		Consensus:     consensus,
		Round:         round,
		NewReputation: newRep,
		ScoreCount:    len(finals),
	}, nil
}

func latestClone(clones []domain.AuditUnit) domain.AuditUnit {
	best := clones[0]
	for _, c := range clones[1:] {
		bt, ct := cloneTime(best), cloneTime(c)
		if ct.After(bt) || (ct.Equal(bt) && c.AuditID > best.AuditID) {
			best = c
		}
	}
	return best
}

func cloneTime(c domain.AuditUnit) time.Time {
	if c.CompletedAt == nil {
		return time.Time{}
	}
	return *c.CompletedAt
}

// updateReputation 声誉按 EMA 吸收共识分：rep' = α·rep + (1−α)·consensus
func (a *Aggregator) updateReputation(ctx context.Context, hotkey string, consensus float64) (float64, error) {
	w, err := a.store.GetWorker(ctx, hotkey)
	if err != nil {
		return 0, err
	}
	old := 0.0
	if w != nil {
		old = w.Reputation
	}
	next := a.alpha*old + (1-a.alpha)*consensus
	next = clamp(next, 0, 10)
	if err := a.store.UpdateWorkerReputation(ctx, hotkey, next); err != nil {
		return next, err
	}
	return next, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WorkerAggregate 任务维度的聚合视图
type WorkerAggregate struct {
	WorkerHotkey string  `json:"worker_hotkey"`
	Consensus    float64 `json:"consensus"`
	ScoreCount   int     `json:"score_count"`
	LastScoredAt string  `json:"last_scored_at"`
}

// AggregateForTask 对某任务下每个工作节点各算一份截尾均值
func (a *Aggregator) AggregateForTask(ctx context.Context, workflowID string) ([]WorkerAggregate, error) {
	all, err := a.store.ListScoresForTask(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	byWorker := make(map[string][]float64)
	lastAt := make(map[string]time.Time)
	var order []string
	for _, s := range all {
		if _, seen := byWorker[s.WorkerHotkey]; !seen {
			order = append(order, s.WorkerHotkey)
		}
		byWorker[s.WorkerHotkey] = append(byWorker[s.WorkerHotkey], s.FinalScore)
		if s.CreatedAt.After(lastAt[s.WorkerHotkey]) {
			lastAt[s.WorkerHotkey] = s.CreatedAt
		}
	}
	out := make([]WorkerAggregate, 0, len(order))
	for _, hotkey := range order {
		out = append(out, WorkerAggregate{
			WorkerHotkey: hotkey,
			Consensus:    TrimmedMean(byWorker[hotkey]),
			ScoreCount:   len(byWorker[hotkey]),
			LastScoredAt: lastAt[hotkey].UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

package service

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"ComputeMarket/internal/audit"
	"ComputeMarket/internal/consensus"
	"ComputeMarket/internal/domain"
	"ComputeMarket/internal/lifecycle"
	"ComputeMarket/internal/registry"
	"ComputeMarket/internal/reward"
	"ComputeMarket/internal/selector"

	"github.com/google/uuid"
)

// memStore 内存版仓库，同时满足各引擎的窄接口，用来串完整流水线
type memStore struct {
	mu          sync.Mutex
	tasks       map[string]*domain.Task
	workers     map[string]*domain.WorkerRecord
	assignments map[string]*domain.TaskAssignment
	submissions []domain.Submission
	units       map[string]*domain.AuditUnit
	scores      []domain.Score
	rewards     []domain.RewardRecord
}

func newMemStore() *memStore {
	return &memStore{
		tasks:       make(map[string]*domain.Task),
		workers:     make(map[string]*domain.WorkerRecord),
		assignments: make(map[string]*domain.TaskAssignment),
		units:       make(map[string]*domain.AuditUnit),
	}
}

func (m *memStore) PublishTask(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.WorkflowID] = &cp
	return nil
}

func (m *memStore) GetTask(_ context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) ListTasks(_ context.Context, offset, limit int) ([]domain.Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (m *memStore) ListActiveTasks(_ context.Context) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, t := range m.tasks {
		if t.Status != domain.TaskStatusDraft && t.Status != domain.TaskStatusEnded {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) UpdateTaskStatus(_ context.Context, id string, status domain.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[id].Status = status
	return nil
}

func (m *memStore) GetWorker(_ context.Context, hotkey string) (*domain.WorkerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[hotkey]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (m *memStore) UpsertWorker(_ context.Context, w *domain.WorkerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.workers[w.Hotkey] = &cp
	return nil
}

func (m *memStore) UpdateWorkerReputation(_ context.Context, hotkey string, reputation float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workers[hotkey]; ok {
		w.Reputation = reputation
	}
	return nil
}

func (m *memStore) ListWorkers(_ context.Context) ([]domain.WorkerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WorkerRecord
	for _, w := range m.workers {
		out = append(out, *w)
	}
	return out, nil
}

func (m *memStore) RecentFinalScores(_ context.Context, hotkey string, limit int) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []float64
	for i := len(m.scores) - 1; i >= 0 && len(out) < limit; i-- {
		if m.scores[i].WorkerHotkey == hotkey {
			out = append(out, m.scores[i].FinalScore)
		}
	}
	return out, nil
}

func (m *memStore) HasAssignment(_ context.Context, workflowID, hotkey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.assignments[workflowID+":"+hotkey]
	return ok, nil
}

func (m *memStore) InsertAssignment(_ context.Context, a *domain.TaskAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := a.WorkflowID + ":" + a.WorkerHotkey
	if _, ok := m.assignments[key]; ok {
		return nil
	}
	cp := *a
	m.assignments[key] = &cp
	return nil
}

func (m *memStore) UpdateAssignmentStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.ID == id {
			a.Status = status
		}
	}
	return nil
}

func (m *memStore) InsertSubmission(_ context.Context, s *domain.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, *s)
	return nil
}

func (m *memStore) LatestSubmission(_ context.Context, workflowID, hotkey string) (*domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.submissions) - 1; i >= 0; i-- {
		s := m.submissions[i]
		if s.WorkflowID == workflowID && s.WorkerHotkey == hotkey {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertAuditUnit(_ context.Context, u *domain.AuditUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.units {
		if existing.AuditorHotkey != "" &&
			existing.WorkflowID == u.WorkflowID &&
			existing.WorkerHotkey == u.WorkerHotkey &&
			existing.AuditorHotkey == u.AuditorHotkey {
			return nil
		}
	}
	cp := *u
	m.units[u.AuditID] = &cp
	return nil
}

func (m *memStore) GetAuditUnit(_ context.Context, auditID string) (*domain.AuditUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[auditID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) ListUnassignedUnits(_ context.Context, workflowID string) ([]domain.AuditUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditUnit
	for _, u := range m.units {
		if u.WorkflowID == workflowID && u.AuditorHotkey == "" {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memStore) CountAssignedClones(_ context.Context, workflowID, hotkey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.units {
		if u.WorkflowID == workflowID && u.WorkerHotkey == hotkey && u.AuditorHotkey != "" {
			n++
		}
	}
	return n, nil
}

func (m *memStore) HasClone(_ context.Context, workflowID, worker, auditor string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.units {
		if u.WorkflowID == workflowID && u.WorkerHotkey == worker && u.AuditorHotkey == auditor {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) PendingCountForAuditor(_ context.Context, auditor string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.units {
		if u.AuditorHotkey == auditor && !u.IsCompleted {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListPendingForAuditor(_ context.Context, auditor string) ([]domain.AuditUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditUnit
	for _, u := range m.units {
		if u.AuditorHotkey == auditor && !u.IsCompleted {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memStore) CompletedClones(_ context.Context, workflowID, worker string) ([]domain.AuditUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditUnit
	for _, u := range m.units {
		if u.WorkflowID == workflowID && u.WorkerHotkey == worker && u.AuditorHotkey != "" && u.IsCompleted {
			out = append(out, *u)
		}
	}
	// 按完成时间排序，轮次号取决于最后完成者
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].CompletedAt != nil && out[i].CompletedAt != nil && out[j].CompletedAt.Before(*out[i].CompletedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memStore) CompleteAuditUnit(_ context.Context, auditID string, result json.RawMessage, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[auditID]
	if !ok || u.IsCompleted {
		return nil
	}
	u.IsCompleted = true
	u.Result = result
	u.CompletedAt = &at
	return nil
}

func (m *memStore) AuditStats(_ context.Context, workflowID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, completed := 0, 0
	for _, u := range m.units {
		if u.WorkflowID == workflowID && u.AuditorHotkey != "" {
			total++
			if u.IsCompleted {
				completed++
			}
		}
	}
	return total, completed, nil
}

func (m *memStore) InsertScore(_ context.Context, s *domain.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, *s)
	return nil
}

func (m *memStore) ListScoresForTask(_ context.Context, workflowID string) ([]domain.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Score
	for _, s := range m.scores {
		if s.WorkflowID == workflowID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) RoundRecorded(_ context.Context, workflowID, round string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rewards {
		if r.WorkflowID == workflowID && r.DistributionRound == round {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertRewardRecord(_ context.Context, r *domain.RewardRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rewards {
		if existing.WorkflowID == r.WorkflowID &&
			existing.WorkerHotkey == r.WorkerHotkey &&
			existing.DistributionRound == r.DistributionRound {
			return nil
		}
	}
	m.rewards = append(m.rewards, *r)
	return nil
}

func (m *memStore) ListRewardsForTask(_ context.Context, workflowID string) ([]domain.RewardRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RewardRecord
	for _, r := range m.rewards {
		if r.WorkflowID == workflowID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fixedEmitter struct{ emission float64 }

func (e fixedEmitter) GetEmission(_ context.Context) (float64, error) { return e.emission, nil }

func pipelineFixture() (*Orchestrator, *memStore, *registry.Cache) {
	store := newMemStore()
	cache := registry.NewCache(120 * time.Second)

	now := time.Now().UTC()
	for _, h := range []string{"miner", "aud1", "aud2", "aud3"} {
		rec := domain.WorkerRecord{
			Hotkey: h, Stake: 5000, Reputation: 5,
			IsActive: true, IsOnline: true, LastHeartbeat: &now,
		}
		cache.Update(rec)
		_ = store.UpsertWorker(context.Background(), &rec)
	}

	sel := selector.New(store, cache, selector.Config{MinStake: 1000, DeliveryTimeout: time.Second})
	assigner := audit.NewAssigner(store, cache, 3)
	aggregator := consensus.NewAggregator(store, 3, 0.9)
	manager := lifecycle.NewManager(store, time.Minute)
	distributor := reward.NewDistributor(store, manager, fixedEmitter{emission: 1000}, reward.Params{
		Baseline: 3.5, Exponent: 3,
		EarlyHours: 6, BestWindowStartHours: 24, BestWindowEndHours: 48,
		DecayPerHour: 0.005, TimeFloor: 0.5,
		FileSizeCapMB: 50, VRAMCapGB: 16, InferenceCapSeconds: 10, ConstraintFloor: 0.5,
		TreasuryFraction: 0.10, TextPoolFraction: 0.27, ImagePoolFraction: 0.63,
	})
	return NewOrchestrator(store, sel, assigner, aggregator, distributor, 0), store, cache
}

func TestFullPipeline(t *testing.T) {
	orch, store, _ := pipelineFixture()
	ctx := context.Background()

	// 发布
	task, validationErrs, err := orch.PublishTask(ctx, validRequest())
	if err != nil || len(validationErrs) > 0 {
		t.Fatalf("publish: err=%v validation=%v", err, validationErrs)
	}
	if task.Status != domain.TaskStatusAnnouncement {
		t.Fatalf("published task should be in announcement, got %s", task.Status)
	}
	if ok, _ := store.HasAssignment(ctx, "wf-1", "miner"); !ok {
		t.Fatal("eligible workers should be assigned at publish")
	}

	// 推进到执行阶段，受理提交
	_ = store.UpdateTaskStatus(ctx, "wf-1", domain.TaskStatusExecution)
	sub := &domain.Submission{
		WorkflowID:   "wf-1",
		WorkerHotkey: "miner",
		ArtifactURL:  "https://cdn/lora.safetensors",
	}
	if err := orch.HandleSubmission(ctx, sub); err != nil {
		t.Fatalf("submission: %v", err)
	}

	// 提交后应克隆出 3 份审计单
	total, completed, _ := orch.AuditProgress(ctx, "wf-1")
	if total != 3 || completed != 0 {
		t.Fatalf("expected 3 pending clones, got total=%d completed=%d", total, completed)
	}

	// 三个审计者依次回写，第三份凑齐法定人数触发共识与分发
	finals := map[string]float64{"aud1": 2, "aud2": 8, "aud3": 9}
	var consensusSeen bool
	for _, auditor := range []string{"aud1", "aud2", "aud3"} {
		pending, err := orch.PendingAudits(ctx, auditor)
		if err != nil || len(pending) != 1 {
			t.Fatalf("pending for %s: %v (%d units)", auditor, err, len(pending))
		}
		res, err := orch.CompleteAudit(ctx, pending[0].AuditID, &AuditResultPayload{
			Similarity: 0.9, Quality: finals[auditor], FinalScore: finals[auditor],
		})
		if err != nil {
			t.Fatalf("complete audit for %s: %v", auditor, err)
		}
		if res != nil {
			consensusSeen = true
			if math.Abs(res.Consensus-8) > 1e-9 {
				t.Fatalf("consensus = %f, want 8 (trimmed mean of 2,8,9)", res.Consensus)
			}
		}
	}
	if !consensusSeen {
		t.Fatal("quorum of 3 completions should trigger consensus")
	}

	// 奖励已按文本池额度落账：1000 × 0.27，单人独占
	rewards, err := orch.TaskRewards(ctx, "wf-1")
	if err != nil {
		t.Fatalf("task rewards: %v", err)
	}
	if len(rewards) != 1 {
		t.Fatalf("expected a single reward record, got %d", len(rewards))
	}
	if math.Abs(rewards[0].Amount-270) > 1e-6 {
		t.Fatalf("reward amount = %f, want 270", rewards[0].Amount)
	}

	// 声誉被共识分拉动：0.9×5 + 0.1×8 = 5.3
	w, _ := store.GetWorker(ctx, "miner")
	if math.Abs(w.Reputation-5.3) > 1e-9 {
		t.Fatalf("reputation = %f, want 5.3", w.Reputation)
	}
}

func TestSubmissionRejectedOutsideExecution(t *testing.T) {
	orch, store, _ := pipelineFixture()
	ctx := context.Background()

	_, _, err := orch.PublishTask(ctx, validRequest())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	// 仍在公告阶段
	sub := &domain.Submission{WorkflowID: "wf-1", WorkerHotkey: "miner", ArtifactURL: "u"}
	if err := orch.HandleSubmission(ctx, sub); err == nil {
		t.Fatal("submission during announcement must be rejected")
	}

	_ = store.UpdateTaskStatus(ctx, "wf-1", domain.TaskStatusExecution)
	// 未被派单的节点不能提交
	stranger := &domain.Submission{WorkflowID: "wf-1", WorkerHotkey: "nobody", ArtifactURL: "u"}
	if err := orch.HandleSubmission(ctx, stranger); err == nil {
		t.Fatal("submission from unassigned worker must be rejected")
	}
}

func TestDuplicatePublishRejected(t *testing.T) {
	orch, _, _ := pipelineFixture()
	ctx := context.Background()

	if _, errs, err := orch.PublishTask(ctx, validRequest()); err != nil || len(errs) > 0 {
		t.Fatalf("first publish: err=%v errs=%v", err, errs)
	}
	_, errs, err := orch.PublishTask(ctx, validRequest())
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if len(errs) == 0 {
		t.Fatal("duplicate workflow_id must be rejected")
	}
}

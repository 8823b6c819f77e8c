package consensus

import (
	"context"
	"math"
	"testing"
	"time"

	"ComputeMarket/internal/domain"

	"github.com/google/uuid"
)

type fakeStore struct {
	scores      []domain.Score
	clones      map[string][]domain.AuditUnit // workflow:worker -> completed clones
	workers     map[string]*domain.WorkerRecord
	reputations map[string]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clones:      make(map[string][]domain.AuditUnit),
		workers:     make(map[string]*domain.WorkerRecord),
		reputations: make(map[string]float64),
	}
}

func (f *fakeStore) InsertScore(_ context.Context, s *domain.Score) error {
	f.scores = append(f.scores, *s)
	return nil
}

func (f *fakeStore) ListScoresForTask(_ context.Context, workflowID string) ([]domain.Score, error) {
	var out []domain.Score
	for _, s := range f.scores {
		if s.WorkflowID == workflowID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) CompletedClones(_ context.Context, workflowID, workerHotkey string) ([]domain.AuditUnit, error) {
	return f.clones[workflowID+":"+workerHotkey], nil
}

func (f *fakeStore) GetWorker(_ context.Context, hotkey string) (*domain.WorkerRecord, error) {
	return f.workers[hotkey], nil
}

func (f *fakeStore) UpdateWorkerReputation(_ context.Context, hotkey string, reputation float64) error {
	f.reputations[hotkey] = reputation
	if w := f.workers[hotkey]; w != nil {
		w.Reputation = reputation
	}
	return nil
}

func (f *fakeStore) addCompletedClone(workflowID, workerHotkey, auditID string) {
	key := workflowID + ":" + workerHotkey
	f.clones[key] = append(f.clones[key], domain.AuditUnit{
		AuditID:      auditID,
		WorkflowID:   workflowID,
		WorkerHotkey: workerHotkey,
		IsCompleted:  true,
	})
}

func (f *fakeStore) addCompletedCloneAt(workflowID, workerHotkey, auditID string, at time.Time) {
	key := workflowID + ":" + workerHotkey
	f.clones[key] = append(f.clones[key], domain.AuditUnit{
		AuditID:      auditID,
		WorkflowID:   workflowID,
		WorkerHotkey: workerHotkey,
		IsCompleted:  true,
		CompletedAt:  &at,
	})
}

func score(workflow, worker, auditor string, final float64) *domain.Score {
	return &domain.Score{
		ID:            uuid.New(),
		WorkflowID:    workflow,
		WorkerHotkey:  worker,
		AuditorHotkey: auditor,
		FinalScore:    final,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestTrimmedMean(t *testing.T) {
	cases := []struct {
		in   []float64
		want float64
	}{
		{[]float64{2, 8, 9}, 8},     // 去掉 2 和 9
		{[]float64{8, 8}, 8},        // 不足三个取平均
		{[]float64{5}, 5},
		{[]float64{1, 2, 3, 10}, 2.5},
		{nil, 0},
	}
	for _, c := range cases {
		if got := TrimmedMean(c.in); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("TrimmedMean(%v) = %f, want %f", c.in, got, c.want)
		}
	}
}

func TestRecordScoreBelowQuorumStaysSilent(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator(store, 3, 0.9)
	ctx := context.Background()

	store.addCompletedClone("wf-1", "w1", "audit-1")
	res, err := agg.RecordScore(ctx, score("wf-1", "w1", "a1", 7), "audit-1")
	if err != nil {
		t.Fatalf("record score: %v", err)
	}
	if res != nil {
		t.Fatal("consensus must not trigger below quorum")
	}
	if len(store.scores) != 1 {
		t.Fatal("score should still be persisted")
	}
}

func TestRecordScoreTriggersConsensusAtQuorum(t *testing.T) {
	store := newFakeStore()
	store.workers["w1"] = &domain.WorkerRecord{Hotkey: "w1", Reputation: 5}
	agg := NewAggregator(store, 3, 0.9)
	ctx := context.Background()

	store.addCompletedClone("wf-1", "w1", "audit-1")
	store.addCompletedClone("wf-1", "w1", "audit-2")
	if res, _ := agg.RecordScore(ctx, score("wf-1", "w1", "a1", 2), "audit-1"); res != nil {
		t.Fatal("two clones should not reach quorum of 3")
	}
	if res, _ := agg.RecordScore(ctx, score("wf-1", "w1", "a2", 8), "audit-2"); res != nil {
		t.Fatal("still below quorum")
	}

	store.addCompletedClone("wf-1", "w1", "audit-3")
	res, err := agg.RecordScore(ctx, score("wf-1", "w1", "a3", 9), "audit-3")
	if err != nil {
		t.Fatalf("record score: %v", err)
	}
	if res == nil {
		t.Fatal("quorum reached, consensus expected")
	}
	// [2, 8, 9] 截尾后剩 8
	if math.Abs(res.Consensus-8) > 1e-9 {
		t.Fatalf("expected consensus 8, got %f", res.Consensus)
	}
	if res.Round != "audit_audit-3" {
		t.Fatalf("round should follow the last completing audit, got %s", res.Round)
	}
	// 声誉 EMA: 0.9*5 + 0.1*8 = 5.3
	if math.Abs(store.reputations["w1"]-5.3) > 1e-9 {
		t.Fatalf("expected reputation 5.3, got %f", store.reputations["w1"])
	}
}

func TestRoundFollowsTriggeringAudit(t *testing.T) {
	at := time.Now().UTC()
	ctx := context.Background()

	// 两个克隆同一时刻完成：轮次号必须取触发方的单号，
	// 不受存储返回顺序影响
	store := newFakeStore()
	agg := NewAggregator(store, 2, 0.9)
	store.addCompletedCloneAt("wf-1", "w1", "audit-b", at)
	store.addCompletedCloneAt("wf-1", "w1", "audit-a", at)

	res, err := agg.RecordScore(ctx, score("wf-1", "w1", "a1", 7), "audit-a")
	if err != nil {
		t.Fatalf("record score: %v", err)
	}
	if res == nil || res.Round != "audit_audit-a" {
		t.Fatalf("round should follow the triggering audit, got %+v", res)
	}
}

func TestRoundFallbackIsDeterministicOnTimestampTie(t *testing.T) {
	at := time.Now().UTC()
	ctx := context.Background()

	// 外部打分通道没有触发单号：完成时间打平时按单号决出，
	// 两种存储顺序必须算出同一个轮次号
	rounds := make(map[string]bool)
	for _, order := range [][]string{{"audit-a", "audit-b"}, {"audit-b", "audit-a"}} {
		store := newFakeStore()
		agg := NewAggregator(store, 2, 0.9)
		for _, id := range order {
			store.addCompletedCloneAt("wf-1", "w1", id, at)
		}
		res, err := agg.RecordScore(ctx, score("wf-1", "w1", "a1", 7), "")
		if err != nil {
			t.Fatalf("record score: %v", err)
		}
		if res == nil {
			t.Fatal("quorum reached, consensus expected")
		}
		rounds[res.Round] = true
	}
	if len(rounds) != 1 || !rounds["audit_audit-b"] {
		t.Fatalf("fallback round must not depend on store order, got %v", rounds)
	}
}

func TestReputationClampedToTen(t *testing.T) {
	store := newFakeStore()
	store.workers["w1"] = &domain.WorkerRecord{Hotkey: "w1", Reputation: 10}
	agg := NewAggregator(store, 1, 0.9)
	ctx := context.Background()

	store.addCompletedClone("wf-1", "w1", "audit-1")
	// 极端高分也不能把声誉推出 [0,10]
	if _, err := agg.RecordScore(ctx, score("wf-1", "w1", "a1", 100), "audit-1"); err != nil {
		t.Fatalf("record score: %v", err)
	}
	if store.reputations["w1"] > 10 {
		t.Fatalf("reputation exceeded clamp: %f", store.reputations["w1"])
	}
}

func TestAggregateForTask(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator(store, 3, 0.9)
	ctx := context.Background()

	for _, s := range []*domain.Score{
		score("wf-1", "w1", "a1", 2),
		score("wf-1", "w1", "a2", 8),
		score("wf-1", "w1", "a3", 9),
		score("wf-1", "w2", "a1", 6),
	} {
		store.scores = append(store.scores, *s)
	}

	out, err := agg.AggregateForTask(ctx, "wf-1")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(out))
	}
	byWorker := make(map[string]WorkerAggregate)
	for _, a := range out {
		byWorker[a.WorkerHotkey] = a
	}
	if math.Abs(byWorker["w1"].Consensus-8) > 1e-9 {
		t.Fatalf("w1 consensus = %f, want 8", byWorker["w1"].Consensus)
	}
	if byWorker["w2"].ScoreCount != 1 {
		t.Fatalf("w2 score count = %d, want 1", byWorker["w2"].ScoreCount)
	}
}

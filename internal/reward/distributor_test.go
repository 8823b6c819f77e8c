package reward

import (
	"context"
	"math"
	"testing"
	"time"

	"ComputeMarket/internal/domain"

	"github.com/google/uuid"
)

type fakeStore struct {
	task        *domain.Task
	scores      []domain.Score
	submissions map[string]*domain.Submission
	records     []domain.RewardRecord
}

func (f *fakeStore) GetTask(_ context.Context, _ string) (*domain.Task, error) {
	return f.task, nil
}

func (f *fakeStore) ListScoresForTask(_ context.Context, workflowID string) ([]domain.Score, error) {
	return f.scores, nil
}

func (f *fakeStore) LatestSubmission(_ context.Context, _, workerHotkey string) (*domain.Submission, error) {
	return f.submissions[workerHotkey], nil
}

func (f *fakeStore) RoundRecorded(_ context.Context, workflowID, round string) (bool, error) {
	for _, r := range f.records {
		if r.WorkflowID == workflowID && r.DistributionRound == round {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertRewardRecord(_ context.Context, r *domain.RewardRecord) error {
	for _, existing := range f.records {
		if existing.WorkflowID == r.WorkflowID &&
			existing.WorkerHotkey == r.WorkerHotkey &&
			existing.DistributionRound == r.DistributionRound {
			return nil
		}
	}
	f.records = append(f.records, *r)
	return nil
}

func (f *fakeStore) ListRewardsForTask(_ context.Context, _ string) ([]domain.RewardRecord, error) {
	return f.records, nil
}

type fakePhases struct {
	active bool
	ended  bool
}

func (p fakePhases) IsInExecutionOrReview(_ context.Context, _ string) bool { return p.active }
func (p fakePhases) IsEnded(_ context.Context, _ string) bool               { return p.ended }

type fakeEmitter struct{ emission float64 }

func (e fakeEmitter) GetEmission(_ context.Context) (float64, error) { return e.emission, nil }

func distributorFixture() (*Distributor, *fakeStore) {
	execStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		task: &domain.Task{
			WorkflowID:     "wf-1",
			WorkflowType:   domain.WorkflowTypeImageLora,
			Status:         domain.TaskStatusReview,
			ExecutionStart: &execStart,
		},
		submissions: map[string]*domain.Submission{
			"w1": {WorkerHotkey: "w1", SubmittedAt: execStart.Add(30 * time.Hour)},
			"w3": {WorkerHotkey: "w3", SubmittedAt: execStart.Add(30 * time.Hour)},
		},
	}
	addScores := func(worker string, finals ...float64) {
		for _, v := range finals {
			store.scores = append(store.scores, domain.Score{
				ID:           uuid.New(),
				WorkflowID:   "wf-1",
				WorkerHotkey: worker,
				FinalScore:   v,
				CreatedAt:    time.Now().UTC(),
			})
		}
	}
	addScores("w1", 8, 8, 8)
	addScores("w2", 2, 2, 2) // 低于基线，出局
	addScores("w3", 6, 6, 6)

	d := NewDistributor(store, fakePhases{active: true}, fakeEmitter{emission: 1000}, testParams())
	return d, store
}

func TestDistributeRoundConservesPool(t *testing.T) {
	d, store := distributorFixture()

	rewards, err := d.DistributeRound(context.Background(), "wf-1", "audit_r1")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if _, ok := rewards["w2"]; ok {
		t.Fatal("below-baseline worker must not appear in rewards")
	}

	// 图像池 = 1000 × 0.63，全部权重合格时发满
	total := 0.0
	for _, amount := range rewards {
		total += amount
	}
	if math.Abs(total-630) > 1e-6 {
		t.Fatalf("rewards sum to %f, want 630", total)
	}

	// 权重比 8³:6³ = 512:216
	ratio := rewards["w1"] / rewards["w3"]
	if math.Abs(ratio-512.0/216.0) > 1e-6 {
		t.Fatalf("reward ratio %f, want %f", ratio, 512.0/216.0)
	}
	if len(store.records) != 2 {
		t.Fatalf("expected 2 reward records, got %d", len(store.records))
	}
}

func TestDistributeRoundIsIdempotent(t *testing.T) {
	d, store := distributorFixture()
	ctx := context.Background()

	if _, err := d.DistributeRound(ctx, "wf-1", "audit_r1"); err != nil {
		t.Fatalf("first distribute: %v", err)
	}
	before := len(store.records)

	rewards, err := d.DistributeRound(ctx, "wf-1", "audit_r1")
	if err != nil {
		t.Fatalf("second distribute: %v", err)
	}
	if rewards != nil {
		t.Fatal("repeated round must be a no-op")
	}
	if len(store.records) != before {
		t.Fatalf("repeated round wrote %d extra records", len(store.records)-before)
	}
}

func TestDistributeRoundNewRoundPaysAgain(t *testing.T) {
	d, store := distributorFixture()
	ctx := context.Background()

	_, _ = d.DistributeRound(ctx, "wf-1", "audit_r1")
	_, _ = d.DistributeRound(ctx, "wf-1", "audit_r2")
	if len(store.records) != 4 {
		t.Fatalf("two rounds should produce 4 records, got %d", len(store.records))
	}
}

func TestDistributeRoundRequiresActivePhase(t *testing.T) {
	d, store := distributorFixture()
	d.phases = fakePhases{active: false}

	rewards, err := d.DistributeRound(context.Background(), "wf-1", "audit_r1")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if rewards != nil || len(store.records) != 0 {
		t.Fatal("distribution outside execution/review must be skipped")
	}
}

func TestDistributeRoundAllBelowBaseline(t *testing.T) {
	execStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		task: &domain.Task{
			WorkflowID:     "wf-1",
			WorkflowType:   domain.WorkflowTypeTextLora,
			ExecutionStart: &execStart,
		},
		submissions: map[string]*domain.Submission{},
		scores: []domain.Score{
			{WorkflowID: "wf-1", WorkerHotkey: "w1", FinalScore: 1},
			{WorkflowID: "wf-1", WorkerHotkey: "w2", FinalScore: 2},
		},
	}
	d := NewDistributor(store, fakePhases{active: true}, fakeEmitter{emission: 1000}, testParams())

	rewards, err := d.DistributeRound(context.Background(), "wf-1", "audit_r1")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(rewards) != 0 || len(store.records) != 0 {
		t.Fatal("nothing should be paid when everyone is below baseline")
	}
}

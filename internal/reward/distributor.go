package reward

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"ComputeMarket/internal/consensus"
	"ComputeMarket/internal/domain"

	"github.com/google/uuid"
)

type Store interface {
	GetTask(ctx context.Context, workflowID string) (*domain.Task, error)
	ListScoresForTask(ctx context.Context, workflowID string) ([]domain.Score, error)
	LatestSubmission(ctx context.Context, workflowID, workerHotkey string) (*domain.Submission, error)
	RoundRecorded(ctx context.Context, workflowID, round string) (bool, error)
	InsertRewardRecord(ctx context.Context, r *domain.RewardRecord) error
	ListRewardsForTask(ctx context.Context, workflowID string) ([]domain.RewardRecord, error)
}

// Phases 分发前置检查依赖的任务阶段视图
type Phases interface {
	IsInExecutionOrReview(ctx context.Context, workflowID string) bool
	IsEnded(ctx context.Context, workflowID string) bool
}

// Emitter 当期排放额度来源
type Emitter interface {
	GetEmission(ctx context.Context) (float64, error)
}

type Distributor struct {
	store   Store
	phases  Phases
	emitter Emitter
	params  Params
}

func NewDistributor(store Store, phases Phases, emitter Emitter, params Params) *Distributor {
	return &Distributor{store: store, phases: phases, emitter: emitter, params: params}
}

// DistributeRound 以审计轮次为单位做一次分发。
// 同一轮次重复调用不会重复落账：先查轮次闸门，写入再由唯一约束兜底
func (d *Distributor) DistributeRound(ctx context.Context, workflowID, round string) (map[string]float64, error) {
	if !d.phases.IsInExecutionOrReview(ctx, workflowID) {
		log.Printf("task %s not in execution/review phase, skipping distribution", workflowID)
		return nil, nil
	}
	if d.phases.IsEnded(ctx, workflowID) {
		log.Printf("task %s already ended, skipping distribution", workflowID)
		return nil, nil
	}
	recorded, err := d.store.RoundRecorded(ctx, workflowID, round)
	if err != nil {
		return nil, err
	}
	if recorded {
		log.Printf("round %s for task %s already recorded", round, workflowID)
		return nil, nil
	}

	task, err := d.store.GetTask(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		log.Printf("task %s not found, skipping distribution", workflowID)
		return nil, nil
	}

	scores, err := d.store.ListScoresForTask(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	byWorker := make(map[string][]float64)
	for _, s := range scores {
		byWorker[s.WorkerHotkey] = append(byWorker[s.WorkerHotkey], s.FinalScore)
	}

	type entry struct {
		consensusScore float64
		weight         float64
		timeCoef       float64
		quality        float64
		constraintCoef float64
	}
	entries := make(map[string]entry)
	totalWeight := 0.0

	for hotkey, finals := range byWorker {
		avg := consensus.TrimmedMean(finals)
		if avg < d.params.Baseline {
			continue
		}
		quality := d.params.QualityWeight(avg)

		timeCoef := 1.0
		sub, err := d.store.LatestSubmission(ctx, workflowID, hotkey)
		if err != nil {
			log.Printf("submission lookup for %s/%s failed: %v", workflowID, hotkey, err)
		}
		if sub != nil && task.ExecutionStart != nil {
			timeCoef = d.params.TimeCoefficient(sub.SubmittedAt, *task.ExecutionStart)
		}
		constraintCoef := d.params.ConstraintCoefficient(sub)

		w := d.params.FinalWeight(quality, timeCoef, constraintCoef)
		entries[hotkey] = entry{
			consensusScore: avg,
			weight:         w,
			timeCoef:       timeCoef,
			quality:        quality,
			constraintCoef: constraintCoef,
		}
		totalWeight += w
	}

	if len(entries) == 0 {
		log.Printf("no eligible workers for task %s (all below baseline)", workflowID)
		return map[string]float64{}, nil
	}
	if totalWeight == 0 {
		log.Printf("total weight is 0 for task %s, no rewards allocated", workflowID)
		return map[string]float64{}, nil
	}

	emission, err := d.emitter.GetEmission(ctx)
	if err != nil {
		return nil, err
	}
	pool := d.params.TaskPool(task.WorkflowType, emission)
	log.Printf("distributing round %s: treasury=%.2f pool=%.2f total_weight=%.2f type=%s",
		round, d.params.TreasuryCut(emission), pool, totalWeight, task.WorkflowType)

	now := time.Now().UTC()
	rewards := make(map[string]float64, len(entries))
	for hotkey, e := range entries {
		amount := pool * e.weight / totalWeight
		rewards[hotkey] = amount
		if amount <= 0 {
			continue
		}
		detail, _ := json.Marshal(map[string]any{
			"round":                  round,
			"quality_score":          e.quality,
			"time_coefficient":       e.timeCoef,
			"constraint_coefficient": e.constraintCoef,
		})
		rec := domain.RewardRecord{
			ID:                uuid.New(),
			WorkflowID:        workflowID,
			WorkerHotkey:      hotkey,
			DistributionRound: round,
			Amount:            amount,
			Weight:            e.weight,
			Score:             e.consensusScore,
			Detail:            detail,
			CreatedAt:         now,
		}
		if err := d.store.InsertRewardRecord(ctx, &rec); err != nil {
			log.Printf("insert reward record for %s failed: %v", hotkey, err)
		}
	}
	log.Printf("rewards distributed for task %s round %s: %d workers", workflowID, round, len(rewards))
	return rewards, nil
}

// TotalForWorker 某任务下某节点累计到账
func (d *Distributor) TotalForWorker(ctx context.Context, workflowID, workerHotkey string) (float64, error) {
	records, err := d.store.ListRewardsForTask(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, r := range records {
		if r.WorkerHotkey == workerHotkey {
			total += r.Amount
		}
	}
	return total, nil
}

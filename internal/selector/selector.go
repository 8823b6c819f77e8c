// Package selector 按质押与近期得分加权抽取工作节点并投递任务
package selector

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"time"

	"ComputeMarket/internal/domain"
	"ComputeMarket/internal/registry"

	"github.com/google/uuid"
)

type Store interface {
	GetWorker(ctx context.Context, hotkey string) (*domain.WorkerRecord, error)
	UpsertWorker(ctx context.Context, w *domain.WorkerRecord) error
	RecentFinalScores(ctx context.Context, workerHotkey string, limit int) ([]float64, error)
	HasAssignment(ctx context.Context, workflowID, workerHotkey string) (bool, error)
	InsertAssignment(ctx context.Context, a *domain.TaskAssignment) error
	UpdateAssignmentStatus(ctx context.Context, id uuid.UUID, status string) error
}

type Config struct {
	MinStake        float64
	DeliveryPaths   []string // 按顺序尝试的投递端点
	DeliveryTimeout time.Duration
}

type Selector struct {
	store  Store
	cache  *registry.Cache
	cfg    Config
	rng    *rand.Rand
	client *http.Client
}

func New(store Store, cache *registry.Cache, cfg Config) *Selector {
	return &Selector{
		store:  store,
		cache:  cache,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		client: &http.Client{Timeout: cfg.DeliveryTimeout},
	}
}

// SampleWeight 抽样权重 = stake × (1 + 最近10次平均分/10)
func SampleWeight(stake float64, recentScores []float64) float64 {
	avg := 0.0
	if len(recentScores) > 0 {
		sum := 0.0
		for _, s := range recentScores {
			sum += s
		}
		avg = sum / float64(len(recentScores))
	}
	return stake * (1.0 + avg/10.0)
}

// WeightedSample 按权重做 k 次独立抽取。同一候选可能被抽中多次，
// 重复项由派单的幂等检查折叠，不在这里去重
func WeightedSample(rng *rand.Rand, hotkeys []string, weights []float64, k int) []string {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 || len(hotkeys) == 0 {
		return nil
	}
	out := make([]string, 0, k)
	for i := 0; i < k; i++ {
		target := rng.Float64() * total
		acc := 0.0
		pick := len(hotkeys) - 1
		for j, w := range weights {
			acc += w
			if target < acc {
				pick = j
				break
			}
		}
		out = append(out, hotkeys[pick])
	}
	return out
}

// SelectWorkers 为任务挑选节点。count<=0 表示返回全部合格节点
func (s *Selector) SelectWorkers(ctx context.Context, workflowID string, count int) []string {
	now := time.Now().UTC()
	var hotkeys []string
	var weights []float64

	for _, rec := range s.cache.Online(now) {
		if rec.Stake < s.cfg.MinStake || !rec.IsActive {
			continue
		}
		if rec.InCooldown(now) {
			continue
		}
		// 首次见到的节点惰性建档
		existing, err := s.store.GetWorker(ctx, rec.Hotkey)
		if err != nil {
			log.Printf("selector get worker %s failed: %v", rec.Hotkey, err)
			continue
		}
		if existing == nil {
			if err := s.store.UpsertWorker(ctx, &rec); err != nil {
				log.Printf("selector create worker %s failed: %v", rec.Hotkey, err)
				continue
			}
		}
		recent, err := s.store.RecentFinalScores(ctx, rec.Hotkey, 10)
		if err != nil {
			log.Printf("selector recent scores for %s failed: %v", rec.Hotkey, err)
			recent = nil
		}
		hotkeys = append(hotkeys, rec.Hotkey)
		weights = append(weights, SampleWeight(rec.Stake, recent))
	}

	if len(hotkeys) == 0 {
		log.Printf("no eligible online workers for task %s", workflowID)
		return nil
	}
	if count <= 0 {
		return hotkeys
	}
	if count > len(hotkeys) {
		count = len(hotkeys)
	}
	return WeightedSample(s.rng, hotkeys, weights, count)
}

// AssignTask 记录派单并投递。单个节点的失败不影响其余节点
func (s *Selector) AssignTask(ctx context.Context, task *domain.Task, hotkeys []string) map[string]bool {
	results := make(map[string]bool)
	for _, hotkey := range hotkeys {
		exists, err := s.store.HasAssignment(ctx, task.WorkflowID, hotkey)
		if err != nil {
			log.Printf("assignment check for %s failed: %v", hotkey, err)
			results[hotkey] = false
			continue
		}
		if exists {
			// 重复抽中或重复派单：无操作
			results[hotkey] = false
			continue
		}

		assignment := domain.TaskAssignment{
			ID:           uuid.New(),
			WorkflowID:   task.WorkflowID,
			WorkerHotkey: hotkey,
			Status:       "assigned",
			AssignedAt:   time.Now().UTC(),
		}
		if err := s.store.InsertAssignment(ctx, &assignment); err != nil {
			log.Printf("insert assignment for %s failed: %v", hotkey, err)
			results[hotkey] = false
			continue
		}

		endpoint := s.cache.Endpoint(hotkey)
		if endpoint == "" {
			// 暂不可达，留待节点自行拉取
			results[hotkey] = true
			_ = s.store.UpdateAssignmentStatus(ctx, assignment.ID, "pending")
			log.Printf("task %s queued for worker %s (endpoint unknown)", task.WorkflowID, hotkey)
			continue
		}

		if s.deliver(ctx, endpoint, task, hotkey) {
			results[hotkey] = true
			_ = s.store.UpdateAssignmentStatus(ctx, assignment.ID, "delivered")
			log.Printf("task %s delivered to worker %s", task.WorkflowID, hotkey)
		} else {
			results[hotkey] = false
			_ = s.store.UpdateAssignmentStatus(ctx, assignment.ID, "failed")
			log.Printf("task %s delivery to worker %s failed", task.WorkflowID, hotkey)
		}
	}
	return results
}

// deliver 依次尝试候选端点，任一返回 200 即成功
func (s *Selector) deliver(ctx context.Context, endpoint string, task *domain.Task, hotkey string) bool {
	payload, _ := json.Marshal(map[string]any{
		"workflow_id":   task.WorkflowID,
		"workflow_type": task.WorkflowType,
		"workflow_spec": task.Spec,
		"worker_key":    hotkey,
	})
	for _, path := range s.cfg.DeliveryPaths {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+path, bytes.NewReader(payload))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return true
		}
	}
	return false
}

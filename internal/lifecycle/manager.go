// Package lifecycle 驱动任务状态机：
// draft → announcement → execution → review → reward → ended
// 除 draft（只能显式发布）外全部由时间边界驱动
package lifecycle

import (
	"context"
	"log"
	"time"

	"ComputeMarket/internal/domain"
)

type TaskStore interface {
	GetTask(ctx context.Context, workflowID string) (*domain.Task, error)
	ListActiveTasks(ctx context.Context) ([]domain.Task, error)
	UpdateTaskStatus(ctx context.Context, workflowID string, status domain.TaskStatus) error
}

// Manager 固定间隔扫描所有未结束任务并按边界推进
type Manager struct {
	store    TaskStore
	interval time.Duration
	ticker   *time.Ticker
	cancel   context.CancelFunc
}

func NewManager(store TaskStore, interval time.Duration) *Manager {
	return &Manager{store: store, interval: interval}
}

// Start 阻塞运行生命周期循环，单个任务出错只记日志不中断
func (m *Manager) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.ticker = time.NewTicker(m.interval)
	log.Printf("lifecycle manager started, interval=%s", m.interval)
	for {
		select {
		case <-cctx.Done():
			log.Println("lifecycle manager stopped")
			return
		case <-m.ticker.C:
			m.TickOnce(cctx, time.Now().UTC())
		}
	}
}

func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.ticker != nil {
		m.ticker.Stop()
	}
}

// TickOnce 推进一轮。边界靠得近时一个 tick 内可以连续推进多级，
// 但严格按阶段顺序逐级走，不跳级
func (m *Manager) TickOnce(ctx context.Context, now time.Time) {
	tasks, err := m.store.ListActiveTasks(ctx)
	if err != nil {
		log.Printf("lifecycle list active tasks failed: %v", err)
		return
	}
	for _, t := range tasks {
		next := Advance(&t, now)
		if next == t.Status {
			continue
		}
		if err := m.store.UpdateTaskStatus(ctx, t.WorkflowID, next); err != nil {
			log.Printf("lifecycle update task %s failed: %v", t.WorkflowID, err)
			continue
		}
		log.Printf("task %s entered %s phase", t.WorkflowID, next)
	}
}

// Advance 计算任务在 now 时刻应处的状态（不含 draft，draft 永不自动推进）
func Advance(t *domain.Task, now time.Time) domain.TaskStatus {
	status := t.Status
	for {
		next, boundary := nextBoundary(t, status)
		if next == status || boundary == nil || now.Before(*boundary) {
			return status
		}
		status = next
	}
}

func nextBoundary(t *domain.Task, from domain.TaskStatus) (domain.TaskStatus, *time.Time) {
	switch from {
	case domain.TaskStatusAnnouncement:
		return domain.TaskStatusExecution, t.ExecutionStart
	case domain.TaskStatusExecution:
		return domain.TaskStatusReview, t.ReviewStart
	case domain.TaskStatusReview:
		return domain.TaskStatusReward, t.RewardStart
	case domain.TaskStatusReward:
		return domain.TaskStatusEnded, t.WorkflowEnd
	}
	return from, nil
}

// IsInExecutionOrReview 奖励分发的前置检查之一
func (m *Manager) IsInExecutionOrReview(ctx context.Context, workflowID string) bool {
	t, err := m.store.GetTask(ctx, workflowID)
	if err != nil || t == nil {
		return false
	}
	return t.Status == domain.TaskStatusExecution || t.Status == domain.TaskStatusReview
}

func (m *Manager) IsEnded(ctx context.Context, workflowID string) bool {
	t, err := m.store.GetTask(ctx, workflowID)
	if err != nil || t == nil {
		return false
	}
	return t.Status == domain.TaskStatusEnded
}

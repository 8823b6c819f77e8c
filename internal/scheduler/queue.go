// Package scheduler 工作节点侧的资源调度：
// 三级优先级队列 + 加速卡槽位表 + 定时派发循环
package scheduler

import (
	"errors"
	"sync"

	"ComputeMarket/internal/domain"
)

var ErrQueueFull = errors.New("job queue is full")

// PriorityFor 按任务类型定优先级，未知类型不拒绝但压到最低
func PriorityFor(workflowType string) domain.JobPriority {
	switch domain.WorkflowType(workflowType) {
	case domain.WorkflowTypeImageLora:
		return domain.JobPriorityHigh
	case domain.WorkflowTypeTextLora:
		return domain.JobPriorityMedium
	}
	return domain.JobPriorityLow
}

// JobQueue 三条先进先出通道，出队从高到低扫描
type JobQueue struct {
	mu      sync.Mutex
	lanes   map[domain.JobPriority][]*domain.QueuedJob
	maxSize int
}

func NewJobQueue(maxSize int) *JobQueue {
	return &JobQueue{
		lanes: map[domain.JobPriority][]*domain.QueuedJob{
			domain.JobPriorityHigh:   nil,
			domain.JobPriorityMedium: nil,
			domain.JobPriorityLow:    nil,
		},
		maxSize: maxSize,
	}
}

func (q *JobQueue) Enqueue(job *domain.QueuedJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sizeLocked() >= q.maxSize {
		return ErrQueueFull
	}
	q.lanes[job.Priority] = append(q.lanes[job.Priority], job)
	return nil
}

// Dequeue 返回最高优先级通道的队首，全空返回 nil
func (q *JobQueue) Dequeue() *domain.QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range []domain.JobPriority{domain.JobPriorityHigh, domain.JobPriorityMedium, domain.JobPriorityLow} {
		if len(q.lanes[p]) > 0 {
			job := q.lanes[p][0]
			q.lanes[p] = q.lanes[p][1:]
			return job
		}
	}
	return nil
}

// PutBack 资源不够时退回通道尾部，让同级的其他任务先走。
// 刚出队的任务退回不会触发容量检查
func (q *JobQueue) PutBack(job *domain.QueuedJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lanes[job.Priority] = append(q.lanes[job.Priority], job)
}

func (q *JobQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

func (q *JobQueue) sizeLocked() int {
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

// LaneSizes 各通道长度快照
func (q *JobQueue) LaneSizes() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]int, len(q.lanes))
	for p, lane := range q.lanes {
		out[p.String()] = len(lane)
	}
	return out
}

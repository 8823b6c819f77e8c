package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"ComputeMarket/internal/domain"
)

// TrainingBackend 真正执行训练的后端
type TrainingBackend interface {
	Train(ctx context.Context, job *domain.QueuedJob) (json.RawMessage, error)
}

// Reporter 把完成结果回报给编排端
type Reporter interface {
	SubmitResult(ctx context.Context, job *domain.QueuedJob) error
}

// Scheduler 固定节拍从队列取任务派发。槽位占满时本节拍空转不出队，
// 各通道保持先进先出；训练并发额度只约束训练类任务，
// 被额度挡下的任务退回本通道尾部
type Scheduler struct {
	queue    *JobQueue
	slots    *SlotTable
	backend  TrainingBackend
	reporter Reporter

	tick        time.Duration
	maxTraining int

	mu              sync.Mutex
	running         int
	runningTraining int
	jobs            map[string]*domain.QueuedJob
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

func New(queue *JobQueue, slots *SlotTable, backend TrainingBackend, reporter Reporter, tick time.Duration, maxTraining int) *Scheduler {
	return &Scheduler{
		queue:       queue,
		slots:       slots,
		backend:     backend,
		reporter:    reporter,
		tick:        tick,
		maxTraining: maxTraining,
		jobs:        make(map[string]*domain.QueuedJob),
	}
}

// Submit 接收一个训练任务入队。队满直接报错，由投递方重试。
// 查重、入队、登记在同一临界区完成，并发重复投递只会入队一次
func (s *Scheduler) Submit(workflowID, workflowType string, spec json.RawMessage) (*domain.QueuedJob, error) {
	job := &domain.QueuedJob{
		JobID:        workflowID,
		WorkflowType: workflowType,
		Priority:     PriorityFor(workflowType),
		Status:       domain.JobStatusPending,
		Spec:         spec,
		EnqueuedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[workflowID]; ok {
		// 重复投递返回已有任务的快照
		cp := *existing
		return &cp, nil
	}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, err
	}
	s.jobs[job.JobID] = job
	log.Printf("job %s enqueued, priority=%s", job.JobID, job.Priority)
	cp := *job
	return &cp, nil
}

// Start 阻塞运行调度循环
func (s *Scheduler) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	log.Printf("scheduler started, tick=%s max_training=%d slots=%d", s.tick, s.maxTraining, s.slots.Capacity())
	for {
		select {
		case <-cctx.Done():
			s.wg.Wait()
			log.Println("scheduler stopped")
			return
		case <-ticker.C:
			s.TickOnce(cctx)
		}
	}
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// TickOnce 单个节拍最多派发一个任务。没有空闲槽位直接跳过，
// 不出队，保住各通道的先进先出
func (s *Scheduler) TickOnce(ctx context.Context) {
	if s.slots.InUse() >= s.slots.Capacity() {
		return
	}

	job := s.queue.Dequeue()
	if job == nil {
		return
	}

	// 并发训练上限只管训练类任务，被挡下的退回本通道尾部
	if isTrainingClass(job.WorkflowType) {
		s.mu.Lock()
		full := s.runningTraining >= s.maxTraining
		s.mu.Unlock()
		if full {
			s.queue.PutBack(job)
			return
		}
	}

	slot, ok := s.slots.Acquire(job.JobID)
	if !ok {
		s.queue.PutBack(job)
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.running++
	if isTrainingClass(job.WorkflowType) {
		s.runningTraining++
	}
	job.Status = domain.JobStatusProcessing
	job.StartedAt = &now
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, job, slot)
}

// isTrainingClass 已知工作流类型都占用训练并发额度，未知类型不占
func isTrainingClass(workflowType string) bool {
	_, err := domain.ParseWorkflowType(workflowType)
	return err == nil
}

func (s *Scheduler) run(ctx context.Context, job *domain.QueuedJob, slot int) {
	defer s.wg.Done()
	defer func() {
		s.slots.Release(slot)
		s.mu.Lock()
		s.running--
		if isTrainingClass(job.WorkflowType) {
			s.runningTraining--
		}
		s.mu.Unlock()
	}()

	log.Printf("job %s started on slot %d", job.JobID, slot)
	result, err := s.backend.Train(ctx, job)
	now := time.Now().UTC()

	s.mu.Lock()
	job.CompletedAt = &now
	if err != nil {
		job.Status = domain.JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = domain.JobStatusCompleted
		job.Result = result
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("job %s failed: %v", job.JobID, err)
		return
	}
	log.Printf("job %s completed", job.JobID)

	if s.reporter != nil {
		if err := s.reporter.SubmitResult(ctx, job); err != nil {
			log.Printf("submit result for job %s failed: %v", job.JobID, err)
		}
	}
}

// Job 查询任务当前状态。返回锁内拷出的快照，
// 调度器内部的任务结构不外借给调用方
func (s *Scheduler) Job(jobID string) (*domain.QueuedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.New("job not found")
	}
	cp := *job
	return &cp, nil
}

// Stats 队列与执行状态快照
type Stats struct {
	Queued      map[string]int `json:"queued"`
	Running     int            `json:"running"`
	MaxTraining int            `json:"max_training"`
	SlotsInUse  int            `json:"slots_in_use"`
	SlotsTotal  int            `json:"slots_total"`
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return Stats{
		Queued:      s.queue.LaneSizes(),
		Running:     running,
		MaxTraining: s.maxTraining,
		SlotsInUse:  s.slots.InUse(),
		SlotsTotal:  s.slots.Capacity(),
	}
}

package lifecycle

import (
	"context"
	"testing"
	"time"

	"ComputeMarket/internal/domain"
)

func ts(t time.Time) *time.Time { return &t }

func scheduledTask(base time.Time) *domain.Task {
	return &domain.Task{
		WorkflowID:        "wf-1",
		Status:            domain.TaskStatusAnnouncement,
		AnnouncementStart: ts(base),
		ExecutionStart:    ts(base.Add(1 * time.Hour)),
		ReviewStart:       ts(base.Add(73 * time.Hour)),
		RewardStart:       ts(base.Add(97 * time.Hour)),
		WorkflowEnd:       ts(base.Add(121 * time.Hour)),
	}
}

func TestAdvanceStaysPutBeforeBoundary(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	task := scheduledTask(base)

	got := Advance(task, base.Add(30*time.Minute))
	if got != domain.TaskStatusAnnouncement {
		t.Fatalf("expected announcement before execution_start, got %s", got)
	}
}

func TestAdvanceSingleStep(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	task := scheduledTask(base)

	got := Advance(task, base.Add(2*time.Hour))
	if got != domain.TaskStatusExecution {
		t.Fatalf("expected execution, got %s", got)
	}
}

func TestAdvanceMultipleStepsInOneTick(t *testing.T) {
	// 边界都已过去时一次推进到底，但不会越过 ended
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	task := scheduledTask(base)

	got := Advance(task, base.Add(200*time.Hour))
	if got != domain.TaskStatusEnded {
		t.Fatalf("expected ended, got %s", got)
	}
}

func TestAdvanceNeverMovesDraft(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	task := scheduledTask(base)
	task.Status = domain.TaskStatusDraft

	got := Advance(task, base.Add(200*time.Hour))
	if got != domain.TaskStatusDraft {
		t.Fatalf("draft must only move on explicit publish, got %s", got)
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	task := scheduledTask(base)

	order := map[domain.TaskStatus]int{
		domain.TaskStatusAnnouncement: 1,
		domain.TaskStatusExecution:    2,
		domain.TaskStatusReview:       3,
		domain.TaskStatusReward:       4,
		domain.TaskStatusEnded:        5,
	}
	prev := 0
	for h := 0; h < 150; h += 7 {
		got := Advance(task, base.Add(time.Duration(h)*time.Hour))
		if order[got] < prev {
			t.Fatalf("status went backwards at +%dh: %s", h, got)
		}
		prev = order[got]
		task.Status = got
	}
}

type fakeTaskStore struct {
	tasks   map[string]*domain.Task
	updates []domain.TaskStatus
}

func (f *fakeTaskStore) GetTask(_ context.Context, id string) (*domain.Task, error) {
	return f.tasks[id], nil
}

func (f *fakeTaskStore) ListActiveTasks(_ context.Context) ([]domain.Task, error) {
	var out []domain.Task
	for _, t := range f.tasks {
		if t.Status != domain.TaskStatusEnded && t.Status != domain.TaskStatusDraft {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTaskStore) UpdateTaskStatus(_ context.Context, id string, status domain.TaskStatus) error {
	f.tasks[id].Status = status
	f.updates = append(f.updates, status)
	return nil
}

func TestTickOncePersistsTransition(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeTaskStore{tasks: map[string]*domain.Task{"wf-1": scheduledTask(base)}}
	m := NewManager(store, time.Minute)

	m.TickOnce(context.Background(), base.Add(2*time.Hour))
	if got := store.tasks["wf-1"].Status; got != domain.TaskStatusExecution {
		t.Fatalf("expected execution after tick, got %s", got)
	}

	// 同一时刻再 tick 一次不应产生新的状态写入
	before := len(store.updates)
	m.TickOnce(context.Background(), base.Add(2*time.Hour))
	if len(store.updates) != before {
		t.Fatalf("idempotent tick wrote %d extra updates", len(store.updates)-before)
	}
}

func TestPhaseChecks(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	task := scheduledTask(base)
	task.Status = domain.TaskStatusReview
	store := &fakeTaskStore{tasks: map[string]*domain.Task{"wf-1": task}}
	m := NewManager(store, time.Minute)

	if !m.IsInExecutionOrReview(context.Background(), "wf-1") {
		t.Fatal("review phase should pass the execution-or-review check")
	}
	if m.IsEnded(context.Background(), "wf-1") {
		t.Fatal("review phase is not ended")
	}

	task.Status = domain.TaskStatusEnded
	if !m.IsEnded(context.Background(), "wf-1") {
		t.Fatal("ended task not reported as ended")
	}
}

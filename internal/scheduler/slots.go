package scheduler

import "sync"

// SlotTable 加速卡槽位表。槽位号从 0 开始，记录占用者便于排障
type SlotTable struct {
	mu    sync.Mutex
	slots []string // 空串表示空闲
}

func NewSlotTable(capacity int) *SlotTable {
	return &SlotTable{slots: make([]string, capacity)}
}

// Acquire 占一个空闲槽位，满了返回 false
func (t *SlotTable) Acquire(jobID string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, holder := range t.slots {
		if holder == "" {
			t.slots[i] = jobID
			return i, true
		}
	}
	return -1, false
}

func (t *SlotTable) Release(slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot >= 0 && slot < len(t.slots) {
		t.slots[slot] = ""
	}
}

func (t *SlotTable) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, holder := range t.slots {
		if holder != "" {
			n++
		}
	}
	return n
}

func (t *SlotTable) Capacity() int {
	return len(t.slots)
}

// Package registry 维护全部已知工作节点的内存视图
// 缓存是选择器与健康检查共享的唯一热点可变状态，读写锁保护
package registry

import (
	"sync"
	"time"

	"ComputeMarket/internal/domain"
)

type Cache struct {
	mu           sync.RWMutex
	workers      map[string]domain.WorkerRecord
	lastUpdate   time.Time
	heartbeatTTL time.Duration
}

func NewCache(heartbeatTTL time.Duration) *Cache {
	return &Cache{
		workers:      make(map[string]domain.WorkerRecord),
		heartbeatTTL: heartbeatTTL,
	}
}

func (c *Cache) Update(rec domain.WorkerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	c.workers[rec.Hotkey] = rec
}

func (c *Cache) Get(hotkey string) (domain.WorkerRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.workers[hotkey]
	return rec, ok
}

// Online 返回在线节点：is_online 置位且心跳在 TTL 窗口内
func (c *Cache) Online(now time.Time) []domain.WorkerRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.WorkerRecord
	for _, rec := range c.workers {
		if !rec.IsOnline {
			continue
		}
		if rec.LastHeartbeat == nil || now.Sub(*rec.LastHeartbeat) > c.heartbeatTTL {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (c *Cache) IsOnline(hotkey string, now time.Time) bool {
	rec, ok := c.Get(hotkey)
	if !ok || !rec.IsOnline {
		return false
	}
	return rec.LastHeartbeat != nil && now.Sub(*rec.LastHeartbeat) <= c.heartbeatTTL
}

func (c *Cache) Endpoint(hotkey string) string {
	rec, ok := c.Get(hotkey)
	if !ok {
		return ""
	}
	return rec.Endpoint
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.workers)
}

func (c *Cache) TTL() time.Duration {
	return c.heartbeatTTL
}

func (c *Cache) SetLastUpdate(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUpdate = t
}

func (c *Cache) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"ComputeMarket/internal/chain"
	"ComputeMarket/internal/domain"
	"ComputeMarket/internal/locks"

	"github.com/redis/go-redis/v9"
)

// WorkerStore 健康检查需要的最小持久化界面
type WorkerStore interface {
	GetWorker(ctx context.Context, hotkey string) (*domain.WorkerRecord, error)
	UpsertWorker(ctx context.Context, rec *domain.WorkerRecord) error
}

// HealthChecker 周期探测链上已知节点，改写注册表缓存并惰性建档
type HealthChecker struct {
	oracle       chain.Oracle
	signer       chain.Signer
	store        WorkerStore
	cache        *Cache
	rdb          *redis.Client
	interval     time.Duration
	heartbeatTTL time.Duration
	client       *http.Client
}

func NewHealthChecker(oracle chain.Oracle, signer chain.Signer, store WorkerStore, cache *Cache, rdb *redis.Client, interval, heartbeatTTL time.Duration) *HealthChecker {
	return &HealthChecker{
		oracle:       oracle,
		signer:       signer,
		store:        store,
		cache:        cache,
		rdb:          rdb,
		interval:     interval,
		heartbeatTTL: heartbeatTTL,
		client:       &http.Client{Timeout: 5 * time.Second},
	}
}

// Start 阻塞运行健康检查循环，ctx 取消后返回
func (h *HealthChecker) Start(ctx context.Context) {
	log.Printf("health checker started, interval=%s", h.interval)
	tkr := time.NewTicker(h.interval)
	defer tkr.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("health checker stopped")
			return
		case <-tkr.C:
			if err := h.checkAll(ctx); err != nil {
				log.Printf("health check cycle failed: %v", err)
			}
		}
	}
}

func (h *HealthChecker) checkAll(ctx context.Context) error {
	nodes, err := h.oracle.GetAllActiveNodes(ctx)
	if err != nil {
		return err
	}

	online := 0
	for _, node := range nodes {
		rec, err := h.store.GetWorker(ctx, node.Hotkey)
		if err != nil {
			log.Printf("get worker %s failed: %v", node.Hotkey, err)
			continue
		}
		if rec == nil {
			// 首次见到的节点：零声誉建档
			rec = &domain.WorkerRecord{Hotkey: node.Hotkey}
		}
		rec.Stake = node.Stake
		rec.IsActive = node.Active
		if node.Endpoint != "" {
			rec.Endpoint = node.Endpoint
		}

		if h.probe(ctx, rec.Endpoint) {
			now := time.Now().UTC()
			rec.IsOnline = true
			rec.LastHeartbeat = &now
			rec.ConsecutiveFailures = 0
			online++
			if h.rdb != nil {
				_ = locks.TouchHeartbeat(ctx, h.rdb, rec.Hotkey, h.heartbeatTTL)
			}
		} else {
			now := time.Now().UTC()
			rec.ConsecutiveFailures++
			rec.LastFailureAt = &now
			if rec.ConsecutiveFailures >= 2 {
				// 连续失败开始惩罚声誉，冷却梯度由失败计数决定
				rec.Reputation *= 0.9
			}
			if rec.LastHeartbeat == nil || now.Sub(*rec.LastHeartbeat) > h.heartbeatTTL {
				rec.IsOnline = false
			}
		}

		if err := h.store.UpsertWorker(ctx, rec); err != nil {
			log.Printf("upsert worker %s failed: %v", rec.Hotkey, err)
			continue
		}
		h.cache.Update(*rec)
	}

	h.cache.SetLastUpdate(time.Now().UTC())
	if h.rdb != nil {
		locks.IncrCounter(ctx, h.rdb, "healthcheck", "ticks")
		locks.SetLastTick(ctx, h.rdb, "healthcheck", map[string]any{
			"time":   time.Now().UTC().Format(time.RFC3339),
			"known":  len(nodes),
			"online": online,
		})
	}
	return nil
}

// probe 发送签名心跳，任何网络错误都视为离线，不向上传播
func (h *HealthChecker) probe(ctx context.Context, endpoint string) bool {
	if endpoint == "" {
		return false
	}
	const path = "/v1/health/heartbeat"
	headers, err := chain.AuthHeaders(h.signer, path)
	if err != nil {
		return false
	}
	body, _ := json.Marshal(map[string]string{
		"hotkey":    h.signer.Hotkey(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+path, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.Status == "online"
}

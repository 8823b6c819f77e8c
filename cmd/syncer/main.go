// syncer 周期把累计奖励权重同步上链。
// 多实例部署时用 Redis 锁保证每个触发点只有一个实例执行
package main

import (
	"context"
	"log"
	"time"

	"ComputeMarket/internal/chain"
	"ComputeMarket/internal/config"
	"ComputeMarket/internal/db"
	"ComputeMarket/internal/locks"
	"ComputeMarket/internal/repo"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.Init(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("postgres init failed: %v", err)
	}
	defer pool.Close()

	rdb, err := locks.Connect(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis init failed: %v", err)
	}
	defer rdb.Close()

	// 解析 cron 表达式（秒级粒度）
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(cfg.WeightSyncCron)
	if err != nil {
		log.Fatalf("bad WEIGHT_SYNC_CRON %q: %v", cfg.WeightSyncCron, err)
	}

	store := repo.NewStore(pool)
	oracle := chain.NewHTTPOracle(cfg.ChainGatewayURL, cfg.ChainTimeout)
	instance := uuid.New().String()

	log.Printf("weight syncer started, cron=%q instance=%s", cfg.WeightSyncCron, instance)
	lastTriggered := time.Now().UTC()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for now := range ticker.C {
		now = now.UTC()
		next := sched.Next(lastTriggered)
		if now.Before(next) {
			continue
		}
		lastTriggered = now

		runCtx, runCancel := context.WithTimeout(context.Background(), time.Minute)
		syncOnce(runCtx, store, oracle, rdb, instance)
		runCancel()
	}
}

func syncOnce(ctx context.Context, store *repo.Store, oracle chain.Oracle, rdb *redis.Client, instance string) {
	ok, err := locks.Acquire(ctx, rdb, "weight_sync", instance, time.Minute)
	if err != nil {
		log.Printf("acquire weight_sync lock failed: %v", err)
		return
	}
	if !ok {
		// 另一个实例在跑，本轮跳过
		return
	}
	defer locks.Release(ctx, rdb, "weight_sync", instance)

	weights, err := store.SumWeightsByWorker(ctx)
	if err != nil {
		log.Printf("sum weights failed: %v", err)
		return
	}
	if len(weights) == 0 {
		log.Println("no reward weights yet, nothing to sync")
		return
	}

	hotkeys := make([]string, 0, len(weights))
	values := make([]float64, 0, len(weights))
	for hotkey, w := range weights {
		hotkeys = append(hotkeys, hotkey)
		values = append(values, w)
	}
	if err := oracle.SetWeights(ctx, hotkeys, values); err != nil {
		log.Printf("set weights failed: %v", err)
		return
	}

	locks.IncrCounter(ctx, rdb, "weight_sync", "runs")
	locks.SetLastTick(ctx, rdb, "weight_sync", map[string]any{
		"time":    time.Now().UTC().Format(time.RFC3339),
		"workers": len(hotkeys),
	})
	log.Printf("weights synced for %d workers", len(hotkeys))
}

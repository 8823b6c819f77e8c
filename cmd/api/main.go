package main

import (
	"context"
	"log"
	"time"

	"ComputeMarket/internal/audit"
	"ComputeMarket/internal/chain"
	"ComputeMarket/internal/config"
	"ComputeMarket/internal/consensus"
	"ComputeMarket/internal/db"
	"ComputeMarket/internal/http/handler"
	"ComputeMarket/internal/lifecycle"
	"ComputeMarket/internal/locks"
	"ComputeMarket/internal/registry"
	"ComputeMarket/internal/repo"
	"ComputeMarket/internal/reward"
	"ComputeMarket/internal/selector"
	"ComputeMarket/internal/service"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化数据库连接
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Init(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres init failed: %v", err)
	}
	defer pool.Close()

	// 确保最小表结构存在
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema failed: %v", err)
	}

	// 初始化 Redis
	rdb, err := locks.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis init failed: %v", err)
	}
	defer rdb.Close()

	store := repo.NewStore(pool)
	cache := registry.NewCache(cfg.HeartbeatTTL)
	signer := chain.NewHMACSigner(cfg.SignerHotkey, cfg.SharedSecret)
	oracle := chain.NewHTTPOracle(cfg.ChainGatewayURL, cfg.ChainTimeout)

	// 组装各引擎
	sel := selector.New(store, cache, selector.Config{
		MinStake:        cfg.MinStake,
		DeliveryPaths:   cfg.DeliveryPaths,
		DeliveryTimeout: cfg.DeliveryTimeout,
	})
	assigner := audit.NewAssigner(store, cache, cfg.Quorum)
	aggregator := consensus.NewAggregator(store, cfg.Quorum, 0.9)
	manager := lifecycle.NewManager(store, cfg.LifecycleTickInterval)
	distributor := reward.NewDistributor(store, manager, oracle, reward.Params{
		Baseline:             cfg.RewardBaseline,
		Exponent:             cfg.QualityExponent,
		EarlyHours:           cfg.EarlyHours,
		BestWindowStartHours: cfg.BestWindowStartHours,
		BestWindowEndHours:   cfg.BestWindowEndHours,
		DecayPerHour:         cfg.DecayPerHour,
		TimeFloor:            cfg.TimeCoefficientFloor,
		FileSizeCapMB:        cfg.FileSizeCapMB,
		VRAMCapGB:            cfg.VRAMCapGB,
		InferenceCapSeconds:  cfg.InferenceCapSeconds,
		ConstraintFloor:      cfg.ConstraintFloor,
		TreasuryFraction:     cfg.TreasuryFraction,
		TextPoolFraction:     cfg.TextPoolFraction,
		ImagePoolFraction:    cfg.ImagePoolFraction,
	})
	orch := service.NewOrchestrator(store, sel, assigner, aggregator, distributor, cfg.SelectWorkerNum)

	// 后台循环：生命周期推进 + 节点健康检查
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go manager.Start(bgCtx)
	checker := registry.NewHealthChecker(oracle, signer, store, cache, rdb, cfg.HealthInterval, cfg.HeartbeatTTL)
	go checker.Start(bgCtx)

	engine := gin.Default()
	h := handler.New(orch, cache, signer, cfg.HeartbeatMaxSkew, pool, rdb)
	h.Register(engine)

	log.Printf("starting orchestrator api on :%s", cfg.HTTPPort)
	if err := engine.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}

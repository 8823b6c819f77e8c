package config

import (
	"os"
	"strconv"
	"time"
)

type AppConfig struct {
	HTTPPort    string
	PostgresDSN string
	RedisURL    string

	// 链网关与签名
	ChainGatewayURL string
	ChainTimeout    time.Duration
	SignerHotkey    string
	SharedSecret    string

	// 生命周期
	LifecycleTickInterval time.Duration

	// 选择器
	MinStake         float64
	SelectWorkerNum  int
	HeartbeatTTL     time.Duration
	HealthInterval   time.Duration
	DeliveryTimeout  time.Duration
	DeliveryPaths    []string
	HeartbeatMaxSkew time.Duration

	// 审计
	Quorum int

	// 奖励
	RewardBaseline       float64
	QualityExponent      int
	EarlyHours           float64 // 执行开始后不足该小时数提交，时间系数 0.8
	BestWindowStartHours float64
	BestWindowEndHours   float64
	DecayPerHour         float64
	TimeCoefficientFloor float64
	FileSizeCapMB        float64
	VRAMCapGB            float64
	InferenceCapSeconds  float64
	ConstraintFloor      float64
	TreasuryFraction     float64
	TextPoolFraction     float64
	ImagePoolFraction    float64

	// 工作节点调度器
	MaxQueueSize       int
	MaxTrainingJobs    int
	AcceleratorSlots   int
	SchedulerTickEvery time.Duration
	OrchestratorURL    string
	WorkerHotkey       string
	WorkerHTTPPort     string
	HeartbeatInterval  time.Duration
	TrainingBackendURL string
	TrainingTimeout    time.Duration

	// 权重同步
	WeightSyncCron string
}

func Load() AppConfig {
	cfg := AppConfig{
		HTTPPort:    envStr("HTTP_PORT", "8080"),
		PostgresDSN: envStr("DATABASE_URL", "host=localhost port=5432 user=market dbname=compute_market sslmode=disable"),
		RedisURL:    envStr("REDIS_URL", "redis://localhost:6379"),

		ChainGatewayURL: envStr("CHAIN_GATEWAY_URL", "http://localhost:9944"),
		ChainTimeout:    envDur("CHAIN_TIMEOUT", 15*time.Second),
		SignerHotkey:    envStr("SIGNER_HOTKEY", "orchestrator"),
		SharedSecret:    envStr("SHARED_SECRET", ""),

		LifecycleTickInterval: envDur("LIFECYCLE_TICK_INTERVAL", 60*time.Second),

		MinStake:         envFloat("MIN_STAKE", 1000.0),
		SelectWorkerNum:  envInt("SELECT_WORKER_NUM", 10),
		HeartbeatTTL:     envDur("HEARTBEAT_TTL", 120*time.Second),
		HealthInterval:   envDur("HEALTH_CHECK_INTERVAL", 600*time.Second),
		DeliveryTimeout:  envDur("DELIVERY_TIMEOUT", 10*time.Second),
		DeliveryPaths:    []string{"/v1/train", "/v1/workflows/receive"},
		HeartbeatMaxSkew: envDur("HEARTBEAT_MAX_SKEW", 300*time.Second),

		Quorum: envInt("AUDIT_QUORUM", 3),

		RewardBaseline:       envFloat("REWARD_BASELINE", 3.5),
		QualityExponent:      envInt("QUALITY_EXPONENT", 3),
		EarlyHours:           envFloat("EARLY_SUBMIT_HOURS", 6),
		BestWindowStartHours: envFloat("BEST_WINDOW_START_HOURS", 24),
		BestWindowEndHours:   envFloat("BEST_WINDOW_END_HOURS", 48),
		DecayPerHour:         envFloat("TIME_DECAY_PER_HOUR", 0.005),
		TimeCoefficientFloor: envFloat("TIME_COEFFICIENT_FLOOR", 0.5),
		FileSizeCapMB:        envFloat("FILE_SIZE_CAP_MB", 50),
		VRAMCapGB:            envFloat("VRAM_CAP_GB", 16),
		InferenceCapSeconds:  envFloat("INFERENCE_CAP_SECONDS", 10),
		ConstraintFloor:      envFloat("CONSTRAINT_FLOOR", 0.5),
		TreasuryFraction:     envFloat("TREASURY_FRACTION", 0.10),
		TextPoolFraction:     envFloat("TEXT_POOL_FRACTION", 0.27),
		ImagePoolFraction:    envFloat("IMAGE_POOL_FRACTION", 0.63),

		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 100),
		MaxTrainingJobs:    envInt("MAX_TRAINING_JOBS", 2),
		AcceleratorSlots:   envInt("ACCELERATOR_SLOTS", 2),
		SchedulerTickEvery: envDur("SCHEDULER_TICK_INTERVAL", time.Second),
		OrchestratorURL:    envStr("ORCHESTRATOR_URL", "http://localhost:8080"),
		WorkerHotkey:       envStr("WORKER_HOTKEY", ""),
		WorkerHTTPPort:     envStr("WORKER_HTTP_PORT", "8091"),
		HeartbeatInterval:  envDur("HEARTBEAT_INTERVAL", 30*time.Second),
		TrainingBackendURL: envStr("TRAINING_BACKEND_URL", "http://localhost:8188"),
		TrainingTimeout:    envDur("TRAINING_TIMEOUT", 2*time.Hour),

		WeightSyncCron: envStr("WEIGHT_SYNC_CRON", "0 */10 * * * *"),
	}
	return cfg
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

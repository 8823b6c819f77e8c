package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"ComputeMarket/internal/chain"
	"ComputeMarket/internal/config"
	"ComputeMarket/internal/http/agent"
	"ComputeMarket/internal/scheduler"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	if cfg.WorkerHotkey == "" {
		log.Fatal("WORKER_HOTKEY is required")
	}

	signer := chain.NewHMACSigner(cfg.WorkerHotkey, cfg.SharedSecret)
	backend := scheduler.NewHTTPBackend(cfg.TrainingBackendURL, cfg.TrainingTimeout)
	reporter := scheduler.NewHTTPReporter(cfg.OrchestratorURL, signer, cfg.DeliveryTimeout)

	queue := scheduler.NewJobQueue(cfg.MaxQueueSize)
	slots := scheduler.NewSlotTable(cfg.AcceleratorSlots)
	sched := scheduler.New(queue, slots, backend, reporter, cfg.SchedulerTickEvery, cfg.MaxTrainingJobs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Start(ctx)
	go heartbeatLoop(ctx, cfg, signer)

	engine := gin.Default()
	h := agent.New(sched, signer, cfg.HeartbeatMaxSkew)
	h.Register(engine)

	log.Printf("starting worker agent on :%s, hotkey=%s", cfg.WorkerHTTPPort, cfg.WorkerHotkey)
	if err := engine.Run(":" + cfg.WorkerHTTPPort); err != nil {
		log.Fatal(err)
	}
}

// heartbeatLoop 周期向编排端报活，网络错误只记日志等下一轮
func heartbeatLoop(ctx context.Context, cfg config.AppConfig, signer chain.Signer) {
	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sendHeartbeat(ctx, client, cfg, signer); err != nil {
				log.Printf("heartbeat failed: %v", err)
			}
		}
	}
}

func sendHeartbeat(ctx context.Context, client *http.Client, cfg config.AppConfig, signer chain.Signer) error {
	const endpoint = "/api/v1/heartbeat"
	payload, _ := json.Marshal(map[string]string{
		"hotkey":   cfg.WorkerHotkey,
		"endpoint": "http://" + cfg.WorkerHotkey + ":" + cfg.WorkerHTTPPort,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.OrchestratorURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	headers, err := chain.AuthHeaders(signer, endpoint)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

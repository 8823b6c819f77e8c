package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ComputeMarket/internal/chain"
	"ComputeMarket/internal/domain"
)

// HTTPBackend 把训练委托给本机的训练服务（ComfyUI 网关等），
// 请求体透传任务规格，响应体原样作为任务结果
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (b *HTTPBackend) Train(ctx context.Context, job *domain.QueuedJob) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]any{
		"job_id":        job.JobID,
		"workflow_type": job.WorkflowType,
		"spec":          job.Spec,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/train", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("training backend returned %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// trainResult 训练服务响应里提交需要的字段
type trainResult struct {
	ArtifactURL      string  `json:"artifact_url"`
	FileSizeMB       float64 `json:"file_size_mb"`
	VRAMGB           float64 `json:"vram_gb"`
	InferenceSeconds float64 `json:"inference_seconds"`
}

// HTTPReporter 把训练结果签名后提交回编排端
type HTTPReporter struct {
	orchestratorURL string
	signer          chain.Signer
	client          *http.Client
}

func NewHTTPReporter(orchestratorURL string, signer chain.Signer, timeout time.Duration) *HTTPReporter {
	return &HTTPReporter{orchestratorURL: orchestratorURL, signer: signer, client: &http.Client{Timeout: timeout}}
}

func (r *HTTPReporter) SubmitResult(ctx context.Context, job *domain.QueuedJob) error {
	var res trainResult
	if len(job.Result) > 0 {
		if err := json.Unmarshal(job.Result, &res); err != nil {
			return fmt.Errorf("parse train result: %w", err)
		}
	}
	payload, err := json.Marshal(map[string]any{
		"workflow_id":       job.JobID,
		"worker_hotkey":     r.signer.Hotkey(),
		"artifact_url":      res.ArtifactURL,
		"file_size_mb":      res.FileSizeMB,
		"vram_gb":           res.VRAMGB,
		"inference_seconds": res.InferenceSeconds,
	})
	if err != nil {
		return err
	}

	endpoint := "/api/v1/submissions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.orchestratorURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	headers, err := chain.AuthHeaders(r.signer, endpoint)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

package service

import (
	"strings"
	"testing"
)

func validRequest() *PublishRequest {
	return &PublishRequest{
		WorkflowID:   "wf-1",
		WorkflowType: "text_lora_creation",
		WorkflowSpec: map[string]any{
			"theme":             "cyberpunk city",
			"target_platform":   "mobile",
			"deployment_target": "device",
			"training_mode":     "new",
			"training_spec": map[string]any{
				"base_model":      "qwen2-0.5b",
				"lora_rank":       float64(16),
				"lora_alpha":      float64(32),
				"iteration_count": float64(1000),
				"batch_size":      float64(4),
			},
			"dataset_spec": map[string]any{
				"source":          "huggingface",
				"repository_id":   "org/dataset",
				"data_format":     "jsonl",
				"question_column": "q",
				"answer_column":   "a",
			},
		},
	}
}

func TestValidRequestPasses(t *testing.T) {
	if errs := ValidateTaskCreate(validRequest()); len(errs) != 0 {
		t.Fatalf("valid request rejected: %v", errs)
	}
}

func TestUnknownWorkflowTypeRejected(t *testing.T) {
	req := validRequest()
	req.WorkflowType = "sculpture_creation"
	errs := ValidateTaskCreate(req)
	if len(errs) == 0 {
		t.Fatal("unknown workflow type must be rejected at publish")
	}
}

func TestValidationCollectsAllErrors(t *testing.T) {
	req := validRequest()
	req.WorkflowID = ""
	req.WorkflowType = "bogus"
	req.ExecutionDuration = -1

	errs := ValidateTaskCreate(req)
	if len(errs) < 3 {
		t.Fatalf("expected all errors reported together, got %v", errs)
	}
}

func TestIncrementalRequiresBaseLora(t *testing.T) {
	req := validRequest()
	req.WorkflowSpec["training_mode"] = "incremental"
	errs := ValidateTaskCreate(req)
	if !containsSubstring(errs, "base_lora_url is required") {
		t.Fatalf("missing base_lora_url not flagged: %v", errs)
	}

	req.WorkflowSpec["base_lora_url"] = "ftp://not-http"
	errs = ValidateTaskCreate(req)
	if !containsSubstring(errs, "base_lora_url must be a valid") {
		t.Fatalf("non-http base_lora_url not flagged: %v", errs)
	}

	req.WorkflowSpec["base_lora_url"] = "https://cdn/base.safetensors"
	if errs := ValidateTaskCreate(req); len(errs) != 0 {
		t.Fatalf("valid incremental request rejected: %v", errs)
	}
}

func TestTrainingSpecRanges(t *testing.T) {
	req := validRequest()
	training := req.WorkflowSpec["training_spec"].(map[string]any)
	training["lora_rank"] = float64(500)
	training["iteration_count"] = float64(5)
	training["batch_size"] = float64(16) // mobile 上限 8

	errs := ValidateTaskCreate(req)
	for _, want := range []string{"lora_rank", "iteration_count", "batch_size"} {
		if !containsSubstring(errs, want) {
			t.Fatalf("expected %s violation in %v", want, errs)
		}
	}
}

func TestImageDatasetColumns(t *testing.T) {
	req := validRequest()
	req.WorkflowType = "image_lora_creation"
	req.WorkflowSpec["target_platform"] = "executor"
	training := req.WorkflowSpec["training_spec"].(map[string]any)
	training["batch_size"] = float64(2)
	req.WorkflowSpec["dataset_spec"] = map[string]any{
		"source":        "huggingface",
		"repository_id": "org/images",
	}

	errs := ValidateTaskCreate(req)
	if !containsSubstring(errs, "image_column") {
		t.Fatalf("missing image columns not flagged: %v", errs)
	}
}

func containsSubstring(errs []string, sub string) bool {
	for _, e := range errs {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}

// Package service 编排端的业务入口：发布校验、提交受理、审计回写与分发触发
package service

import (
	"fmt"
	"strings"
)

// PublishRequest 任务发布请求。各阶段时长单位为小时，缺省用默认档期
type PublishRequest struct {
	WorkflowID           string         `json:"workflow_id"`
	WorkflowType         string         `json:"workflow_type"`
	WorkflowSpec         map[string]any `json:"workflow_spec"`
	AnnouncementDuration float64        `json:"announcement_duration"`
	ExecutionDuration    float64        `json:"execution_duration"`
	ReviewDuration       float64        `json:"review_duration"`
	RewardDuration       float64        `json:"reward_duration"`
}

// ValidateTaskCreate 校验发布请求，返回全部错误而不是碰到第一个就停
func ValidateTaskCreate(req *PublishRequest) []string {
	var errs []string

	if req.WorkflowID == "" {
		errs = append(errs, "workflow_id is required and must be a string")
	}
	if req.WorkflowType != "text_lora_creation" && req.WorkflowType != "image_lora_creation" {
		errs = append(errs, fmt.Sprintf("invalid workflow_type: %q, must be 'text_lora_creation' or 'image_lora_creation'", req.WorkflowType))
	}
	if len(req.WorkflowSpec) == 0 {
		errs = append(errs, "workflow_spec is required")
	} else {
		errs = append(errs, validateWorkflowSpec(req.WorkflowSpec)...)
	}

	for name, d := range map[string]float64{
		"announcement_duration": req.AnnouncementDuration,
		"execution_duration":    req.ExecutionDuration,
		"review_duration":       req.ReviewDuration,
		"reward_duration":       req.RewardDuration,
	} {
		if d < 0 {
			errs = append(errs, name+" must be a non-negative number")
		}
	}
	return errs
}

func validateWorkflowSpec(spec map[string]any) []string {
	var errs []string

	for _, field := range []string{"theme", "target_platform", "deployment_target", "training_mode", "dataset_spec", "training_spec"} {
		if _, ok := spec[field]; !ok {
			errs = append(errs, "missing required field: "+field)
		}
	}
	if len(errs) > 0 {
		return errs
	}

	mode, _ := spec["training_mode"].(string)
	if mode != "new" && mode != "incremental" {
		errs = append(errs, fmt.Sprintf("invalid training_mode: %q, must be 'new' or 'incremental'", mode))
	}
	if mode == "incremental" {
		base, _ := spec["base_lora_url"].(string)
		if base == "" {
			errs = append(errs, "base_lora_url is required for incremental training")
		} else if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			errs = append(errs, "base_lora_url must be a valid HTTP/HTTPS URL")
		}
	}

	platform, _ := spec["target_platform"].(string)
	if training, ok := spec["training_spec"].(map[string]any); ok {
		errs = append(errs, validateTrainingSpec(training, platform)...)
	} else {
		errs = append(errs, "training_spec must be an object")
	}
	if dataset, ok := spec["dataset_spec"].(map[string]any); ok {
		errs = append(errs, validateDatasetSpec(dataset, platform)...)
	} else {
		errs = append(errs, "dataset_spec must be an object")
	}
	return errs
}

func validateTrainingSpec(training map[string]any, platform string) []string {
	var errs []string

	for _, field := range []string{"base_model", "lora_rank", "lora_alpha", "iteration_count", "batch_size"} {
		if _, ok := training[field]; !ok {
			errs = append(errs, "missing required training_spec field: "+field)
		}
	}
	if len(errs) > 0 {
		return errs
	}

	if model, _ := training["base_model"].(string); model == "" {
		errs = append(errs, "base_model must be a non-empty string")
	}
	if rank, ok := asInt(training["lora_rank"]); !ok || rank < 1 || rank > 128 {
		errs = append(errs, "lora_rank must be an integer between 1 and 128")
	}
	if alpha, ok := asInt(training["lora_alpha"]); !ok || alpha < 1 || alpha > 256 {
		errs = append(errs, "lora_alpha must be an integer between 1 and 256")
	}
	if iters, ok := asInt(training["iteration_count"]); !ok || iters < 100 || iters > 10000 {
		errs = append(errs, "iteration_count must be an integer between 100 and 10000")
	}

	batch, ok := asInt(training["batch_size"])
	if !ok || batch < 1 {
		errs = append(errs, "batch_size must be a positive integer")
	} else if platform == "mobile" && batch > 8 {
		errs = append(errs, "batch_size for mobile (text) tasks should not exceed 8")
	} else if platform == "executor" && batch > 2 {
		errs = append(errs, "batch_size for executor (image) tasks should not exceed 2")
	}

	if lr, present := training["learning_rate"]; present {
		if v, ok := asFloat(lr); !ok || v <= 0 || v > 0.01 {
			errs = append(errs, "learning_rate must be a positive number between 0 and 0.01")
		}
	}

	if platform == "executor" {
		if res, present := training["resolution"]; present {
			errs = append(errs, validateResolution(res)...)
		}
	}
	return errs
}

func validateResolution(res any) []string {
	dims, ok := res.([]any)
	if !ok || len(dims) != 2 {
		return []string{"resolution must be a list of two integers [width, height]"}
	}
	w, wok := asInt(dims[0])
	h, hok := asInt(dims[1])
	if !wok || !hok {
		return []string{"resolution width and height must be integers"}
	}
	if w < 256 || w > 1024 || h < 256 || h > 1024 {
		return []string{"resolution dimensions must be between 256 and 1024"}
	}
	return nil
}

func validateDatasetSpec(dataset map[string]any, platform string) []string {
	var errs []string

	for _, field := range []string{"source", "repository_id"} {
		if _, ok := dataset[field]; !ok {
			errs = append(errs, "missing required dataset_spec field: "+field)
		}
	}
	if len(errs) > 0 {
		return errs
	}

	if source, _ := dataset["source"].(string); source != "huggingface" {
		errs = append(errs, "dataset source must be 'huggingface'")
	}
	if repo, _ := dataset["repository_id"].(string); repo == "" {
		errs = append(errs, "repository_id must be a non-empty string")
	}

	switch platform {
	case "mobile":
		if format, _ := dataset["data_format"].(string); format != "jsonl" {
			errs = append(errs, "data_format for text tasks must be 'jsonl'")
		}
		if _, q := dataset["question_column"]; !q {
			errs = append(errs, "text tasks require question_column and answer_column in dataset_spec")
		} else if _, a := dataset["answer_column"]; !a {
			errs = append(errs, "text tasks require question_column and answer_column in dataset_spec")
		}
	case "executor":
		if _, img := dataset["image_column"]; !img {
			errs = append(errs, "image tasks require image_column and caption_column in dataset_spec")
		} else if _, cap := dataset["caption_column"]; !cap {
			errs = append(errs, "image tasks require image_column and caption_column in dataset_spec")
		}
	}

	if sc, present := dataset["sample_count"]; present {
		if v, ok := asInt(sc); !ok || v < 1 {
			errs = append(errs, "sample_count must be a positive integer")
		}
	}
	return errs
}

// asInt JSON 解出来的数字是 float64，按整数语义收敛
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Package reward 实现质量权重、时间/约束系数与排放分池
package reward

import (
	"math"
	"time"

	"ComputeMarket/internal/domain"
)

// Params 打分参数，全部来自配置
type Params struct {
	Baseline             float64 // 低于基线不参与分配
	Exponent             int
	EarlyHours           float64
	BestWindowStartHours float64
	BestWindowEndHours   float64
	DecayPerHour         float64
	TimeFloor            float64
	FileSizeCapMB        float64
	VRAMCapGB            float64
	InferenceCapSeconds  float64
	ConstraintFloor      float64
	TreasuryFraction     float64
	TextPoolFraction     float64
	ImagePoolFraction    float64
}

// QualityWeight 质量权重：低于基线归零，否则 score^k 放大头部差距
func (p Params) QualityWeight(score float64) float64 {
	if score < p.Baseline {
		return 0
	}
	return math.Pow(score, float64(p.Exponent))
}

// TimeCoefficient 时间系数。开赛 6 小时内交付视为可疑的抢跑，打 0.8；
// 24~48 小时是最佳窗口拿满系数；超过窗口后每小时衰减，保底 0.5
func (p Params) TimeCoefficient(submittedAt, executionStart time.Time) float64 {
	hours := submittedAt.Sub(executionStart).Hours()
	if hours < p.EarlyHours {
		return 0.8
	}
	if hours >= p.BestWindowStartHours && hours <= p.BestWindowEndHours {
		return 1.0
	}
	if hours > p.BestWindowEndHours {
		coef := 1.0 - (hours-p.BestWindowEndHours)*p.DecayPerHour
		return math.Max(p.TimeFloor, coef)
	}
	return 1.0
}

// ConstraintCoefficient 产物超出资源约束时扣减，零值字段表示未上报不扣。
// 多项超限系数连乘，保底 0.5
func (p Params) ConstraintCoefficient(sub *domain.Submission) float64 {
	coef := 1.0
	if sub == nil {
		return coef
	}
	if sub.FileSizeMB > 0 && sub.FileSizeMB > p.FileSizeCapMB {
		coef *= 0.8
	}
	if sub.VRAMGB > 0 && sub.VRAMGB > p.VRAMCapGB {
		coef *= 0.7
	}
	if sub.InferenceSeconds > 0 && sub.InferenceSeconds > p.InferenceCapSeconds {
		coef *= 0.9
	}
	return math.Max(p.ConstraintFloor, coef)
}

func (p Params) FinalWeight(quality, timeCoef, constraintCoef float64) float64 {
	return quality * timeCoef * constraintCoef
}

// TaskPool 有任务期间某任务可分的排放额度：
// 先扣金库份额，文本池与图像池按固定比例切分总排放
func (p Params) TaskPool(workflowType domain.WorkflowType, totalEmission float64) float64 {
	switch workflowType {
	case domain.WorkflowTypeTextLora:
		return totalEmission * p.TextPoolFraction
	case domain.WorkflowTypeImageLora:
		return totalEmission * p.ImagePoolFraction
	}
	return totalEmission * (1 - p.TreasuryFraction) * 0.5
}

// TreasuryCut 有任务期间划入金库的份额
func (p Params) TreasuryCut(totalEmission float64) float64 {
	return totalEmission * p.TreasuryFraction
}

// IdleTreasury 无任务期间排放全额进金库，节点不分
func (p Params) IdleTreasury(totalEmission float64) float64 {
	return totalEmission
}

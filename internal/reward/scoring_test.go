package reward

import (
	"math"
	"testing"
	"time"

	"ComputeMarket/internal/domain"
)

func testParams() Params {
	return Params{
		Baseline:             3.5,
		Exponent:             3,
		EarlyHours:           6,
		BestWindowStartHours: 24,
		BestWindowEndHours:   48,
		DecayPerHour:         0.005,
		TimeFloor:            0.5,
		FileSizeCapMB:        50,
		VRAMCapGB:            16,
		InferenceCapSeconds:  10,
		ConstraintFloor:      0.5,
		TreasuryFraction:     0.10,
		TextPoolFraction:     0.27,
		ImagePoolFraction:    0.63,
	}
}

func TestQualityWeight(t *testing.T) {
	p := testParams()
	if got := p.QualityWeight(3.4); got != 0 {
		t.Fatalf("below baseline must be 0, got %f", got)
	}
	if got := p.QualityWeight(7); math.Abs(got-343) > 1e-9 {
		t.Fatalf("7^3 = 343, got %f", got)
	}
	// 基线本身是合格的
	if got := p.QualityWeight(3.5); got == 0 {
		t.Fatal("score at baseline should not be zeroed")
	}
}

func TestTimeCoefficient(t *testing.T) {
	p := testParams()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		hours float64
		want  float64
	}{
		{2, 0.8},    // 抢跑
		{12, 1.0},   // 窗口前的正常区间
		{24, 1.0},   // 窗口起点
		{36, 1.0},   // 窗口内
		{48, 1.0},   // 窗口终点
		{58, 0.95},  // 超窗 10 小时：1 − 10×0.005
		{200, 0.5},  // 衰减触底
	}
	for _, c := range cases {
		got := p.TimeCoefficient(start.Add(time.Duration(c.hours*float64(time.Hour))), start)
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("hours=%.0f: got %f, want %f", c.hours, got, c.want)
		}
	}
}

func TestConstraintCoefficient(t *testing.T) {
	p := testParams()

	if got := p.ConstraintCoefficient(nil); got != 1.0 {
		t.Fatalf("missing submission should not penalize, got %f", got)
	}
	if got := p.ConstraintCoefficient(&domain.Submission{FileSizeMB: 40, VRAMGB: 8, InferenceSeconds: 5}); got != 1.0 {
		t.Fatalf("within all caps should be 1.0, got %f", got)
	}
	if got := p.ConstraintCoefficient(&domain.Submission{FileSizeMB: 60}); math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("oversized file: got %f, want 0.8", got)
	}
	// 三项全超：0.8×0.7×0.9 = 0.504
	got := p.ConstraintCoefficient(&domain.Submission{FileSizeMB: 60, VRAMGB: 20, InferenceSeconds: 12})
	if math.Abs(got-0.504) > 1e-9 {
		t.Fatalf("all caps exceeded: got %f, want 0.504", got)
	}
	// 未上报的字段不参与扣减
	if got := p.ConstraintCoefficient(&domain.Submission{}); got != 1.0 {
		t.Fatalf("unreported metrics should not penalize, got %f", got)
	}
}

func TestTaskPoolSplit(t *testing.T) {
	p := testParams()
	if got := p.TaskPool(domain.WorkflowTypeTextLora, 1000); math.Abs(got-270) > 1e-9 {
		t.Fatalf("text pool = %f, want 270", got)
	}
	if got := p.TaskPool(domain.WorkflowTypeImageLora, 1000); math.Abs(got-630) > 1e-9 {
		t.Fatalf("image pool = %f, want 630", got)
	}
	if got := p.TreasuryCut(1000); math.Abs(got-100) > 1e-9 {
		t.Fatalf("treasury = %f, want 100", got)
	}
	if got := p.IdleTreasury(1000); got != 1000 {
		t.Fatalf("idle treasury = %f, want full emission", got)
	}
}

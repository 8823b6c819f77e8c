package domain

import "time"

type WorkerRecord struct {
	Hotkey              string     `json:"hotkey"`               // 节点唯一身份
	Stake               float64    `json:"stake"`                // 质押量
	Reputation          float64    `json:"reputation"`           // EMA 声誉分 0-10
	IsActive            bool       `json:"is_active"`            // 链上是否激活
	IsOnline            bool       `json:"is_online"`            // 健康检查是否在线
	Endpoint            string     `json:"endpoint"`             // 可达地址
	LastHeartbeat       *time.Time `json:"last_heartbeat"`       // 最近一次心跳
	ConsecutiveFailures int        `json:"consecutive_failures"` // 连续失败次数（冷却用）
	LastFailureAt       *time.Time `json:"last_failure_at"`      // 最近一次失败时间
	UpdatedAt           time.Time  `json:"updated_at"`
}

// InCooldown 根据连续失败次数判断是否处于冷却期：
// 3 次失败冷却 24 小时，4 次及以上冷却 48 小时
func (w *WorkerRecord) InCooldown(now time.Time) bool {
	hours := CooldownHours(w.ConsecutiveFailures)
	if hours == 0 || w.LastFailureAt == nil {
		return false
	}
	return now.Sub(*w.LastFailureAt) < time.Duration(hours)*time.Hour
}

func CooldownHours(consecutiveFailures int) int {
	switch {
	case consecutiveFailures <= 2:
		return 0
	case consecutiveFailures == 3:
		return 24
	default:
		return 48
	}
}

// Package chain 定义引擎消费的链上预言机与签名协作者接口
// 具体实现（真实链客户端、钱包）在引擎之外
package chain

import "context"

// ActiveNode 链上已知的活跃节点
type ActiveNode struct {
	Hotkey   string  `json:"hotkey"`
	Stake    float64 `json:"stake"`
	Endpoint string  `json:"endpoint"`
	Active   bool    `json:"active"`
}

type Oracle interface {
	GetStake(ctx context.Context, hotkey string) (float64, error)
	GetAllActiveNodes(ctx context.Context) ([]ActiveNode, error)
	GetEmission(ctx context.Context) (float64, error)
	SetWeights(ctx context.Context, hotkeys []string, weights []float64) error
}

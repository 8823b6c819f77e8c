package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPOracle 通过旁路的链网关服务访问链上数据，实现 Oracle 接口
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

func NewHTTPOracle(baseURL string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *HTTPOracle) GetStake(ctx context.Context, hotkey string) (float64, error) {
	var out struct {
		Stake float64 `json:"stake"`
	}
	if err := o.getJSON(ctx, "/v1/chain/stake?hotkey="+url.QueryEscape(hotkey), &out); err != nil {
		return 0, err
	}
	return out.Stake, nil
}

func (o *HTTPOracle) GetAllActiveNodes(ctx context.Context) ([]ActiveNode, error) {
	var out struct {
		Nodes []ActiveNode `json:"nodes"`
	}
	if err := o.getJSON(ctx, "/v1/chain/nodes", &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

func (o *HTTPOracle) GetEmission(ctx context.Context) (float64, error) {
	var out struct {
		Emission float64 `json:"emission"`
	}
	if err := o.getJSON(ctx, "/v1/chain/emission", &out); err != nil {
		return 0, err
	}
	return out.Emission, nil
}

func (o *HTTPOracle) SetWeights(ctx context.Context, hotkeys []string, weights []float64) error {
	if len(hotkeys) != len(weights) {
		return fmt.Errorf("hotkeys/weights length mismatch: %d vs %d", len(hotkeys), len(weights))
	}
	body, _ := json.Marshal(map[string]any{"hotkeys": hotkeys, "weights": weights})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chain/weights", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("set weights: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (o *HTTPOracle) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package chain

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Signer 签名协作者。引擎不做任何密码学运算，只负责拼装与校验消息格式
type Signer interface {
	Sign(payload string) (signature string, err error)
	Verify(payload, signature, hotkey string) bool
	Hotkey() string
}

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderHotkey    = "X-Hotkey"
)

// AuthHeaders 为一次节点间调用生成签名头，消息为 "<endpoint>:<unix秒>"
func AuthHeaders(s Signer, endpoint string) (map[string]string, error) {
	ts := time.Now().Unix()
	sig, err := s.Sign(fmt.Sprintf("%s:%d", endpoint, ts))
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderSignature: sig,
		HeaderTimestamp: strconv.FormatInt(ts, 10),
		HeaderHotkey:    s.Hotkey(),
	}, nil
}

// VerifyRequest 校验签名头。时间戳偏移超过 maxSkew 的请求一律拒绝
func VerifyRequest(s Signer, endpoint string, header http.Header, maxSkew time.Duration) error {
	sig := header.Get(HeaderSignature)
	tsRaw := header.Get(HeaderTimestamp)
	hotkey := header.Get(HeaderHotkey)
	if sig == "" || tsRaw == "" || hotkey == "" {
		return fmt.Errorf("missing auth headers")
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp: %w", err)
	}
	skew := time.Since(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return fmt.Errorf("timestamp outside freshness window: %s", skew)
	}
	if !s.Verify(fmt.Sprintf("%s:%d", endpoint, ts), sig, hotkey) {
		return fmt.Errorf("signature verification failed for %s", hotkey)
	}
	return nil
}

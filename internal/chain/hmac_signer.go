package chain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HMACSigner 共享密钥签名。整个网络共用一把密钥，
// 身份由 hotkey 声明，消息完整性由 HMAC 保证
type HMACSigner struct {
	hotkey string
	secret []byte
}

func NewHMACSigner(hotkey, secret string) *HMACSigner {
	return &HMACSigner{hotkey: hotkey, secret: []byte(secret)}
}

func (s *HMACSigner) Sign(payload string) (string, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *HMACSigner) Verify(payload, signature, hotkey string) bool {
	want, err := s.Sign(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(signature))
}

func (s *HMACSigner) Hotkey() string {
	return s.hotkey
}

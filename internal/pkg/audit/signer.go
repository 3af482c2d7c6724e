package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptyKey 签名密钥为空
var ErrEmptyKey = errors.New("audit signing key is empty")

// Signer 对规范化后的载荷做 HMAC-SHA256 签名
type Signer struct {
	key []byte
}

// NewSigner 创建签名器
func NewSigner(key string) (*Signer, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return &Signer{key: []byte(key)}, nil
}

// Sign 返回十六进制签名
func (s *Signer) Sign(payload any) string {
	return s.SignCanonical(Canonicalize(payload))
}

// SignCanonical 对已经规范化的文本签名
func (s *Signer) SignCanonical(canonical string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 重新计算签名并做常数时间比较
func (s *Signer) Verify(payload any, signature string) bool {
	expected, err := hex.DecodeString(s.Sign(payload))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

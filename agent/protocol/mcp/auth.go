package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BaSui01/taskforce/types"
)

// TokenSource 为出站请求提供 Bearer token
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken 固定 token
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// JWTAuthConfig 使用共享密钥签发 HS256 token
type JWTAuthConfig struct {
	Secret   string        `yaml:"secret" json:"secret"`
	Issuer   string        `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience string        `yaml:"audience,omitempty" json:"audience,omitempty"`
	Subject  string        `yaml:"subject,omitempty" json:"subject,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

// 距过期不足该时长时重新签发
const tokenRefreshSkew = 30 * time.Second

// JWTSigner 签发并缓存短期 JWT
type JWTSigner struct {
	cfg JWTAuthConfig
	now func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewJWTSigner 创建签发器，TTL 默认 5 分钟
func NewJWTSigner(cfg JWTAuthConfig) (*JWTSigner, error) {
	if cfg.Secret == "" {
		return nil, types.NewConfigurationError("jwt auth requires a secret")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &JWTSigner{cfg: cfg, now: time.Now}, nil
}

// Token 返回缓存的 token，临近过期时重新签发
func (s *JWTSigner) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(tokenRefreshSkew).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.cfg.TTL)
	claims := jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   s.cfg.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	s.token = signed
	s.expires = expires
	return signed, nil
}

// newTokenSource 按配置选择 token 来源：auth 优先于 bearer_token
func newTokenSource(cfg TransportConfig) (TokenSource, error) {
	if cfg.Auth != nil {
		signer, err := NewJWTSigner(*cfg.Auth)
		if err != nil {
			return nil, err
		}
		return signer, nil
	}
	if cfg.BearerToken != "" {
		return StaticToken(cfg.BearerToken), nil
	}
	return nil, nil
}

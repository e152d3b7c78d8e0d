package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// ErrInvalidToken 表示 token 无法通过校验。
var ErrInvalidToken = errors.New("无效的 token")

const (
	tokenIssuer   = "case_for_ai"
	tokenAudience = "case_for_ai_clients"
	shareAudience = "case_for_ai_share"
)

// Tokens 负责签发和校验 HS256 JWT，用于 jwt 认证模式和文档分享链接。
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens 创建一个 Tokens。
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueUser 为用户签发登录 token。
func (t *Tokens) IssueUser(userID uint) (string, error) {
	now := t.now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": tokenIssuer,
		"aud": tokenAudience,
		"exp": now.Add(t.ttl).Unix(),
		"iat": now.Unix(),
	}
	return t.sign(claims)
}

// ParseUser 校验登录 token 并返回用户 ID。
func (t *Tokens) ParseUser(tokenString string) (uint, error) {
	claims, err := t.parse(tokenString, tokenAudience)
	if err != nil {
		return 0, err
	}
	// JWT 解析数字时默认为 float64
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return 0, ErrInvalidToken
	}
	return uint(sub), nil
}

// IssueShare 为一条分享记录签发访问 token。
func (t *Tokens) IssueShare(shareID, jti string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": shareID,
		"jti": jti,
		"iss": tokenIssuer,
		"aud": shareAudience,
		"exp": expiresAt.Unix(),
		"iat": t.now().Unix(),
	}
	return t.sign(claims)
}

// ParseShare 校验分享 token，返回分享 ID 与 jti。
// 过期的 token 仍然返回 ID，同时返回 ErrTokenExpired，由调用方决定返回 403。
func (t *Tokens) ParseShare(tokenString string) (shareID, jti string, err error) {
	claims, err := t.parse(tokenString, shareAudience)
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		return "", "", err
	}
	shareID, _ = claims["sub"].(string)
	jti, _ = claims["jti"].(string)
	if shareID == "" || jti == "" {
		return "", "", ErrInvalidToken
	}
	return shareID, jti, err
}

// ErrTokenExpired 表示签名有效但 token 已过期。
var ErrTokenExpired = errors.New("token 已过期")

func (t *Tokens) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("签发 token 失败: %w", err)
	}
	return s, nil
}

func (t *Tokens) parse(tokenString, audience string) (jwt.MapClaims, error) {
	parser := &jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// 确保 token 的签名方法是我们期望的
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("非预期的签名方法")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyAudience(audience, true) || !claims.VerifyIssuer(tokenIssuer, true) {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyExpiresAt(t.now().Unix(), true) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

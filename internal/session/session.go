package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMissing = errors.New("session token missing")
	ErrTokenInvalid = errors.New("session token is invalid")
	ErrTokenExpired = errors.New("session token has expired")
)

// Claims 会话凭证声明
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Identity 用户 id，user_id 为空时退回 sub
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// Decoder 解析后端下发的会话 cookie
type Decoder struct {
	secretKey []byte
}

// NewDecoder 创建解析器。secret 为空时只解析不验签，由网关负责鉴权
func NewDecoder(secret string) *Decoder {
	return &Decoder{secretKey: []byte(secret)}
}

// Verifying 是否校验签名
func (d *Decoder) Verifying() bool {
	return len(d.secretKey) > 0
}

// Decode 解析凭证；过期的凭证总是被拒绝
func (d *Decoder) Decode(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	claims := &Claims{}
	if d.Verifying() {
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrTokenInvalid
			}
			return d.secretKey, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrTokenExpired
			}
			return nil, ErrTokenInvalid
		}
		if !token.Valid {
			return nil, ErrTokenInvalid
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, ErrTokenInvalid
		}
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			return nil, ErrTokenExpired
		}
	}

	if claims.Identity() == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Issue 签发凭证，用于本地开发和测试
func Issue(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "social-client",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

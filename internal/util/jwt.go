package util

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const issuer = "automation-license-server"

var (
	mu       sync.RWMutex
	secret   []byte
	tokenTTL = 72 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

// Claims 后台账户令牌
type Claims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// InitJWT 启动时设置签名密钥和有效期
func InitJWT(key string, ttl time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	secret = []byte(key)
	if ttl > 0 {
		tokenTTL = ttl
	}
}

func GenerateToken(userID uint) (string, error) {
	mu.RLock()
	key, ttl := secret, tokenTTL
	mu.RUnlock()
	if len(key) == 0 {
		return "", errors.New("jwt secret not initialized")
	}

	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ValidateToken 校验令牌并返回用户 ID
func ValidateToken(tokenString string) (uint, error) {
	mu.RLock()
	key := secret
	mu.RUnlock()
	if len(key) == 0 {
		return 0, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Issuer != issuer || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// accessClaims полезная нагрузка access токена: sub и роль вызывающего.
type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager проверяет access токены. Выпуск токенов ведёт сервис авторизации,
// здесь он нужен для тестов и локальной разработки.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue подписывает токен HS256.
func (m *TokenManager) Issue(userID uuid.UUID, role string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ParseAccess принимает только HS256 с непросроченным exp.
func (m *TokenManager) ParseAccess(token string) (uuid.UUID, string, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, "", err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("token: некорректный sub %w", err)
	}
	return userID, claims.Role, nil
}

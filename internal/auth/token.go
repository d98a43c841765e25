package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "voxel-server"

// ErrInvalidToken токен не прошел проверку
var ErrInvalidToken = errors.New("invalid token")

// Claims содержимое токена повторного входа
type Claims struct {
	Account string `json:"account"`
	Entity  uint32 `json:"entity"`
	jwt.RegisteredClaims
}

// Tokens выпускает и проверяет токены повторного входа
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens создает выпускающего токены. secret в base64;
// пустая строка означает случайный ключ, живущий до перезапуска.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	var key []byte
	if secret == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("генерация секрета: %w", err)
		}
	} else {
		decoded, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("секрет токенов: %w", err)
		}
		if len(decoded) < 32 {
			return nil, errors.New("секрет токенов короче 32 байт")
		}
		key = decoded
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: key, ttl: ttl}, nil
}

// Issue выпускает токен для учетной записи и ее сущности
func (t *Tokens) Issue(account string, entity uint32) (string, error) {
	now := time.Now()
	claims := &Claims{
		Account: account,
		Entity:  entity,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   account,
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}

// Validate проверяет подпись и срок действия
func (t *Tokens) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный алгоритм подписи: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Account == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateSecret генерирует новый секрет в base64 для конфигурации
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

package service

import (
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/uav-memtrust/internal/domain"
	"github.com/xela07ax/uav-memtrust/internal/infra"
	"github.com/xela07ax/uav-memtrust/internal/infra/auth"
)

// AuthService выпускает и проверяет RS256 токены консоли. У стенда один
// оператор, его bcrypt-хэш лежит в конфиге — таблица пользователей не нужна.
// Embedding OperatorValidator дает реализацию auth.TokenValidator.
type AuthService struct {
	*auth.OperatorValidator

	cfg        infra.AuthConfig
	privateKey *rsa.PrivateKey
}

func NewAuthService(cfg infra.AuthConfig, privateKey *rsa.PrivateKey, validator *auth.OperatorValidator) *AuthService {
	return &AuthService{
		OperatorValidator: validator,
		cfg:               cfg,
		privateKey:        privateKey,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация: сравнение логина в constant time, пароля — bcrypt
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.OperatorUser)) != 1 {
		return nil, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.OperatorPassHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 2. Формирование Claims
	expiresAt := time.Now().Add(s.cfg.TokenTTL)
	claims := &domain.CustomClaims{
		UserID: username,
		Scopes: map[string]bool{auth.ScopeOperator: true},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.Issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// 3. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/config"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/users"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

const (
	devEmail    = "dev@localhost.dev"
	devUsername = "dev"
	devTTL      = 30 * 24 * time.Hour
)

// Service - сервис авторизации: регистрация, вход по паролю, dev-вход и JWT
type Service struct {
	config *config.Config
	users  storage.UsersStorage
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(cfg *config.Config, users storage.UsersStorage, log logrus.FieldLogger) *Service {
	return &Service{config: cfg, users: users, log: log, now: time.Now}
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := users.HashPassword(req.Password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}
	user := &storage.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		Profile:      req.Profile,
		Preferences:  req.Preferences,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, apperr.WithCode(apperr.Conflict("User with this email or username already exists"), "user_exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.WithField("user_id", user.ID).Info("user registered")
	return s.respond(*user, s.config.JWTTTL())
}

// Login checks the password. Unknown emails and wrong passwords look the same.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !users.CheckPassword(user.PasswordHash, req.Password) {
		return nil, errInvalidCredentials
	}
	return s.respond(user, s.config.JWTTTL())
}

var errInvalidCredentials = apperr.Unauthorized("invalid_credentials", "Invalid email or password")

// SignInDev - dev-авторизация без пароля, выдает JWT на 30 дней.
// Пользователь dev создаётся при первом входе.
func (s *Service) SignInDev(ctx context.Context) (*AuthResponse, error) {
	if s.config.AuthMode != config.AuthModeDev {
		return nil, apperr.NotFound("dev sign-in is disabled")
	}

	user, err := s.users.GetByEmail(ctx, devEmail)
	if errors.Is(err, storage.ErrNotFound) {
		secret := make([]byte, 16)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate dev password: %w", err)
		}
		hash, herr := users.HashPassword(hex.EncodeToString(secret), s.config.BcryptCost)
		if herr != nil {
			return nil, herr
		}
		user = storage.User{Email: devEmail, Username: devUsername, PasswordHash: hash}
		err = s.users.Create(ctx, &user)
		if errors.Is(err, storage.ErrDuplicateKey) {
			user, err = s.users.GetByEmail(ctx, devEmail)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dev user: %w", err)
	}
	return s.respond(user, devTTL)
}

func (s *Service) respond(user storage.User, ttl time.Duration) (*AuthResponse, error) {
	token, err := s.generateJWTWithTTL(user.ID, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	return &AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		User:        users.ToDTO(user),
	}, nil
}

func (s *Service) generateJWT(userID string) (string, error) {
	return s.generateJWTWithTTL(userID, s.config.JWTTTL())
}

func (s *Service) generateJWTWithTTL(userID string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.config.JWTIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// VerifyJWT - проверка JWT токена, возвращает user id
func (s *Service) VerifyJWT(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.JWTIssuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.JWTSecret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/repos"
)

var (
	ErrUsernameTaken      = errors.New("用户名已存在")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
)

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type AuthService interface {
	Register(ctx context.Context, username, password, displayName string) (*domain.User, string, error)
	Login(ctx context.Context, username, password string) (*domain.User, string, error)
	ParseToken(token string) (uuid.UUID, error)
}

type authClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

type authService struct {
	db    *gorm.DB
	log   *logger.Logger
	users repos.UserRepo
	cfg   AuthConfig
}

func NewAuthService(db *gorm.DB, baseLog *logger.Logger, users repos.UserRepo, cfg AuthConfig) AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	return &authService{
		db:    db,
		log:   baseLog.With("service", "AuthService"),
		users: users,
		cfg:   cfg,
	}
}

func (s *authService) issueToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := authClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *authService) Register(ctx context.Context, username, password, displayName string) (*domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}
	existing, err := s.users.GetByUsername(ctx, nil, username)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Username:    username,
		Password:    string(hash),
		DisplayName: strings.TrimSpace(displayName),
	}
	if _, err := s.users.Create(ctx, nil, user); err != nil {
		return nil, "", err
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("user registered", "user_id", user.ID, "username", username)
	return user, token, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	user, err := s.users.GetByUsername(ctx, nil, strings.TrimSpace(username))
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *authService) ParseToken(token string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(token, &authClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalidCredentials
	}
	claims, ok := parsed.Claims.(*authClaims)
	if !ok {
		return uuid.Nil, ErrInvalidCredentials
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, ErrInvalidCredentials
	}
	return id, nil
}

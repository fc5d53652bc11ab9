package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

type memUserRepo struct {
	byName map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byName: map[string]*domain.User{}}
}

func (r *memUserRepo) Create(ctx context.Context, tx *gorm.DB, u *domain.User) (*domain.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.byName[u.Username] = u
	return u, nil
}
func (r *memUserRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.User, error) {
	for _, u := range r.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}
func (r *memUserRepo) GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*domain.User, error) {
	return r.byName[username], nil
}
func (r *memUserRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func newAuth(t *testing.T) AuthService {
	t.Helper()
	return NewAuthService(nil, logger.NewNop(), newMemUserRepo(), AuthConfig{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	})
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()

	user, token, err := auth.Register(ctx, "teacher01", "secret123", "王老师")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if token == "" {
		t.Fatalf("register returned empty token")
	}
	if user.Password == "secret123" {
		t.Fatalf("password stored in plain text")
	}

	got, loginToken, err := auth.Login(ctx, "teacher01", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("login user = %s, want %s", got.ID, user.ID)
	}
	if loginToken == "" {
		t.Fatalf("login returned empty token")
	}

	id, err := auth.ParseToken(loginToken)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if id != user.ID {
		t.Fatalf("token user = %s, want %s", id, user.ID)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()

	if _, _, err := auth.Register(ctx, "teacher01", "secret123", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := auth.Register(ctx, "teacher01", "other", ""); err != ErrUsernameTaken {
		t.Fatalf("duplicate register err = %v, want ErrUsernameTaken", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()

	if _, _, err := auth.Register(ctx, "teacher01", "secret123", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := auth.Login(ctx, "teacher01", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := auth.Login(ctx, "nobody", "secret123"); err != ErrInvalidCredentials {
		t.Fatalf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	auth := newAuth(t)
	other := NewAuthService(nil, logger.NewNop(), newMemUserRepo(), AuthConfig{
		JWTSecret: "different-secret",
		TokenTTL:  time.Hour,
	})

	_, token, err := other.Register(context.Background(), "teacher01", "secret123", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected foreign token to be rejected")
	}
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User carries the per-instructor AI endpoint settings the pipelines run with.
type User struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Username    string         `gorm:"column:username;not null;uniqueIndex" json:"username"`
	Password    string         `gorm:"column:password_hash;not null" json:"-"`
	DisplayName string         `gorm:"column:display_name" json:"display_name,omitempty"`
	AIAPIKey    string         `gorm:"column:ai_api_key" json:"-"`
	AIBaseURL   string         `gorm:"column:ai_base_url" json:"ai_base_url,omitempty"`
	AIModelName string         `gorm:"column:ai_model_name" json:"ai_model_name,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "app_user" }

// HasAIConfig reports whether this user can drive LLM generation at all.
func (u *User) HasAIConfig() bool {
	return u != nil && u.AIAPIKey != "" && u.AIBaseURL != ""
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job lifecycle. A job is created queued, claimed into running, and ends in
// completed or failed. The pipeline never deletes or resumes a job; a retry
// is always a brand-new row.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

const (
	JobTypeTeachingPlanBuild = "teaching_plan_build"
	JobTypeLessonPlanBuild   = "lesson_plan_build"
	JobTypeCopyrightBuild    = "copyright_build"
)

const (
	EntityTypeCourse           = "course"
	EntityTypeCopyrightProject = "copyright_project"
)

// StageError is the terminal pseudo-stage recorded alongside status=failed.
const StageError = "error"

type GenerationJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	JobType     string         `gorm:"column:job_type;not null;index" json:"job_type"`
	EntityType  string         `gorm:"column:entity_type;not null;index" json:"entity_type"`
	EntityID    uuid.UUID      `gorm:"type:uuid;column:entity_id;not null;index" json:"entity_id"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Stage       string         `gorm:"column:stage;not null" json:"stage"`
	Message     string         `gorm:"column:message" json:"message"`
	Progress    int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	OutputPath  string         `gorm:"column:output_path" json:"output_path,omitempty"`
	LockedAt    *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	Result      datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (GenerationJob) TableName() string { return "generation_job" }

func (j *GenerationJob) Terminal() bool {
	if j == nil {
		return false
	}
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

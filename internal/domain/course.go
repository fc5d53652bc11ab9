package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Course struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Name          string         `gorm:"column:name;not null" json:"name"`
	Semester      string         `gorm:"column:semester" json:"semester"`
	ClassName     string         `gorm:"column:class_name" json:"class_name"`
	TotalHours    int            `gorm:"column:total_hours;not null;default:0" json:"total_hours"`
	PracticeHours int            `gorm:"column:practice_hours;not null;default:0" json:"practice_hours"`
	CourseCatalog string         `gorm:"column:course_catalog;type:text" json:"course_catalog"`
	CreatedAt     time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "course" }

// TheoryHours is derived, never stored.
func (c *Course) TheoryHours() int {
	if c == nil {
		return 0
	}
	return c.TotalHours - c.PracticeHours
}

// Document types. DocTypeLessonLegacy is a compatibility read alias only;
// writes always use DocTypeLesson.
const (
	DocTypePlan         = "plan"
	DocTypeLesson       = "lesson"
	DocTypeLessonLegacy = "lesson_plan"
)

type CourseDocument struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	DocType      string         `gorm:"column:doc_type;not null;index" json:"doc_type"`
	Title        string         `gorm:"column:title;not null" json:"title"`
	Content      datatypes.JSON `gorm:"column:content;type:jsonb" json:"content,omitempty"`
	FileURL      string         `gorm:"column:file_url" json:"file_url,omitempty"`
	LessonNumber int            `gorm:"column:lesson_number;index" json:"lesson_number,omitempty"`
	PlanParams   datatypes.JSON `gorm:"column:plan_params;type:jsonb" json:"plan_params,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CourseDocument) TableName() string { return "course_document" }

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	GenerationModeFast = "fast"
	GenerationModeFull = "full"
)

// SanitizeGenerationMode collapses unknown modes onto the fast path.
func SanitizeGenerationMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case GenerationModeFull:
		return GenerationModeFull
	default:
		return GenerationModeFast
	}
}

type CopyrightProject struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Name              string         `gorm:"column:name;not null" json:"name"`
	Domain            string         `gorm:"column:domain" json:"domain,omitempty"`
	SystemName        string         `gorm:"column:system_name" json:"system_name,omitempty"`
	SoftwareAbbr      string         `gorm:"column:software_abbr" json:"software_abbr,omitempty"`
	Description       string         `gorm:"column:description;type:text" json:"description,omitempty"`
	GenerationMode    string         `gorm:"column:generation_mode;not null;default:fast" json:"generation_mode"`
	IncludeSourcecode bool           `gorm:"column:include_sourcecode;not null;default:true" json:"include_sourcecode"`
	IncludeUIDesc     bool           `gorm:"column:include_ui_desc;not null;default:true" json:"include_ui_desc"`
	IncludeTechDesc   bool           `gorm:"column:include_tech_desc;not null;default:true" json:"include_tech_desc"`
	RequirementsText  string         `gorm:"column:requirements_text;type:text" json:"requirements_text,omitempty"`
	UIDescription     string         `gorm:"column:ui_description;type:text" json:"ui_description,omitempty"`
	TechDescription   string         `gorm:"column:tech_description;type:text" json:"tech_description,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CopyrightProject) TableName() string { return "copyright_project" }

// EffectiveSystemName prefers the registered software title over the project label.
func (p *CopyrightProject) EffectiveSystemName() string {
	if p == nil {
		return ""
	}
	if s := strings.TrimSpace(p.SystemName); s != "" {
		return s
	}
	return strings.TrimSpace(p.Name)
}

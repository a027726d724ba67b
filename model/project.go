package model

import (
	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// Project modes decide credential sourcing.
const (
	ProjectModeCredits = "credits"
	ProjectModeBYOK    = "byok"
	ProjectModeHybrid  = "hybrid"
)

// Project scopes API keys and feature flags under an organization.
type Project struct {
	ID             string `json:"id" gorm:"primaryKey;size:64"`
	OrganizationID string `json:"organization_id" gorm:"size:64;index"`
	Name           string `json:"name" gorm:"size:128"`
	Mode           string `json:"mode" gorm:"size:16;default:credits"`

	CacheEnabled bool `json:"cache_enabled"`

	CreatedAt int64          `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64          `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// GetProjectByID loads one project; deleted rows are invisible.
func GetProjectByID(id string) (*Project, error) {
	if id == "" {
		return nil, errors.New("project id is empty")
	}
	var project Project
	if err := DB.First(&project, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "load project %s", id)
	}
	return &project, nil
}

// PrefersBYOK reports whether routing should favor organization credentials.
func (p *Project) PrefersBYOK() bool {
	return p.Mode == ProjectModeBYOK || p.Mode == ProjectModeHybrid
}

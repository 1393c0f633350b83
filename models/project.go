package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
)

// Project is a funded research project.
type Project struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"size:512;not null" json:"title"`
	Funder      string         `gorm:"size:255" json:"funder"`
	Amount      string         `gorm:"size:64" json:"amount"`
	StartDate   *time.Time     `json:"start_date"`
	EndDate     *time.Time     `json:"end_date"`
	Description string         `gorm:"type:text" json:"description"`
	Tags        datatypes.JSON `json:"tags"`
	TeacherID   *uint          `gorm:"index" json:"teacher_id"`
	LabID       *uint          `gorm:"index" json:"lab_id"`
	CreatedBy   uint           `gorm:"index" json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (p *Project) ResourceKind() policy.Kind { return policy.KindProject }

func (p *Project) PolicySubject() any { return policy.OwnedSubject{OwnerID: p.CreatedBy} }

func (p *Project) PrepareCreate(creatorID uint) {
	p.ID = 0
	p.CreatedBy = creatorID
	p.DeletedAt = gorm.DeletedAt{}
}

func (p *Project) Clean() {
	p.Title = cleanLine(p.Title)
	p.Funder = cleanLine(p.Funder)
	p.Description = cleanHTML(p.Description)
	p.Tags = normalizeJSONList(p.Tags)
}

package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
)

// Program is a degree program offered by the department.
type Program struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:191;not null" json:"name"`
	Degree      string         `gorm:"size:64" json:"degree"`
	Duration    string         `gorm:"size:64" json:"duration"`
	Description string         `gorm:"type:text" json:"description"`
	SortOrder   int            `gorm:"not null;default:0" json:"sort_order"`
	CreatedBy   uint           `gorm:"index" json:"created_by"`
	Courses     []Course       `json:"courses,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (p *Program) ResourceKind() policy.Kind { return policy.KindProgram }

func (p *Program) PolicySubject() any { return policy.OwnedSubject{OwnerID: p.CreatedBy} }

func (p *Program) PrepareCreate(creatorID uint) {
	p.ID = 0
	p.CreatedBy = creatorID
	p.DeletedAt = gorm.DeletedAt{}
	p.Courses = nil
}

func (p *Program) Clean() {
	p.Name = cleanLine(p.Name)
	p.Degree = cleanLine(p.Degree)
	p.Duration = cleanLine(p.Duration)
	p.Description = cleanHTML(p.Description)
}

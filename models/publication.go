package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
)

// Publication is a paper, book or report by department members.
type Publication struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Title     string         `gorm:"size:512;not null" json:"title"`
	Authors   string         `gorm:"size:1024" json:"authors"`
	Venue     string         `gorm:"size:255" json:"venue"`
	Year      int            `gorm:"index" json:"year"`
	Kind      string         `gorm:"size:32" json:"kind"`
	DOI       string         `gorm:"size:255" json:"doi"`
	URL       string         `gorm:"size:1024" json:"url"`
	Abstract  string         `gorm:"type:text" json:"abstract"`
	TeacherID *uint          `gorm:"index" json:"teacher_id"`
	LabID     *uint          `gorm:"index" json:"lab_id"`
	CreatedBy uint           `gorm:"index" json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (p *Publication) ResourceKind() policy.Kind { return policy.KindPublication }

func (p *Publication) PolicySubject() any { return policy.OwnedSubject{OwnerID: p.CreatedBy} }

func (p *Publication) PrepareCreate(creatorID uint) {
	p.ID = 0
	p.CreatedBy = creatorID
	p.DeletedAt = gorm.DeletedAt{}
}

func (p *Publication) Clean() {
	p.Title = cleanLine(p.Title)
	p.Authors = cleanLine(p.Authors)
	p.Venue = cleanLine(p.Venue)
	p.Kind = cleanLine(p.Kind)
	p.Abstract = cleanHTML(p.Abstract)
}

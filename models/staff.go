package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
)

// Staff is an administrative staff directory entry.
type Staff struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:128;not null" json:"name"`
	Position  string         `gorm:"size:128" json:"position"`
	Email     string         `gorm:"size:255" json:"email"`
	Phone     string         `gorm:"size:64" json:"phone"`
	Office    string         `gorm:"size:128" json:"office"`
	PhotoURL  string         `gorm:"size:1024" json:"photo_url"`
	Duties    string         `gorm:"type:text" json:"duties"`
	SortOrder int            `gorm:"not null;default:0" json:"sort_order"`
	CreatedBy uint           `gorm:"index" json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (s *Staff) ResourceKind() policy.Kind { return policy.KindStaff }

func (s *Staff) PolicySubject() any { return policy.OwnedSubject{OwnerID: s.CreatedBy} }

func (s *Staff) PrepareCreate(creatorID uint) {
	s.ID = 0
	s.CreatedBy = creatorID
	s.DeletedAt = gorm.DeletedAt{}
}

func (s *Staff) Clean() {
	s.Name = cleanLine(s.Name)
	s.Position = cleanLine(s.Position)
	s.Office = cleanLine(s.Office)
	s.Duties = cleanHTML(s.Duties)
}

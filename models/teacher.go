package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
)

// Teacher is a public faculty profile. A user account may be linked to one.
type Teacher struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"size:128;not null" json:"name"`
	Title         string         `gorm:"size:64" json:"title"`
	Email         string         `gorm:"size:255" json:"email"`
	Phone         string         `gorm:"size:64" json:"phone"`
	Office        string         `gorm:"size:128" json:"office"`
	Bio           string         `gorm:"type:text" json:"bio"`
	PhotoURL      string         `gorm:"size:1024" json:"photo_url"`
	Homepage      string         `gorm:"size:1024" json:"homepage"`
	ResearchAreas datatypes.JSON `json:"research_areas"`
	SortOrder     int            `gorm:"not null;default:0" json:"sort_order"`
	CreatedBy     uint           `gorm:"index" json:"created_by"`
	Labs          []Lab          `gorm:"many2many:lab_teachers;" json:"labs,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (t *Teacher) ResourceKind() policy.Kind { return policy.KindTeacher }

func (t *Teacher) PolicySubject() any { return policy.ProfileSubject{TeacherID: t.ID} }

func (t *Teacher) PrepareCreate(creatorID uint) {
	t.ID = 0
	t.CreatedBy = creatorID
	t.DeletedAt = gorm.DeletedAt{}
	t.Labs = nil
}

func (t *Teacher) Clean() {
	t.Name = cleanLine(t.Name)
	t.Title = cleanLine(t.Title)
	t.Office = cleanLine(t.Office)
	t.Bio = cleanHTML(t.Bio)
	t.ResearchAreas = normalizeJSONList(t.ResearchAreas)
}

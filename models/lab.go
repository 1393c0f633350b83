package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
)

// Lab is a research group. Member teachers manage it.
type Lab struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:191;not null" json:"name"`
	Slug        string         `gorm:"size:191;index" json:"slug"`
	Description string         `gorm:"type:text" json:"description"`
	Location    string         `gorm:"size:255" json:"location"`
	Website     string         `gorm:"size:1024" json:"website"`
	CoverImage  string         `gorm:"size:1024" json:"cover_image"`
	LeaderID    *uint          `gorm:"index" json:"leader_id"`
	CreatedBy   uint           `gorm:"index" json:"created_by"`
	Teachers    []Teacher      `gorm:"many2many:lab_teachers;" json:"teachers,omitempty"`
	Attachments []Attachment   `gorm:"polymorphic:Attachable;polymorphicValue:lab" json:"attachments,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// MemberIDs returns the teacher IDs of the loaded members.
func (l *Lab) MemberIDs() []uint {
	ids := make([]uint, 0, len(l.Teachers))
	for _, t := range l.Teachers {
		ids = append(ids, t.ID)
	}
	return ids
}

// Subject describes the lab as an authorization target. Teachers must be preloaded.
func (l *Lab) Subject() policy.LabSubject {
	return policy.LabSubject{MemberTeacherIDs: l.MemberIDs()}
}

// Clean trims and sanitizes the editable fields.
func (l *Lab) Clean() {
	l.Name = cleanLine(l.Name)
	l.Location = cleanLine(l.Location)
	l.Description = cleanHTML(l.Description)
}

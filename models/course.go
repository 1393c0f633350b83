package models

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
)

// Course belongs to a program when ProgramID is set.
type Course struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ProgramID   *uint          `gorm:"index" json:"program_id"`
	Code        string         `gorm:"size:32;index" json:"code"`
	Name        string         `gorm:"size:191;not null" json:"name"`
	Credits     float64        `json:"credits"`
	Semester    string         `gorm:"size:32" json:"semester"`
	Description string         `gorm:"type:text" json:"description"`
	CreatedBy   uint           `gorm:"index" json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (c *Course) ResourceKind() policy.Kind { return policy.KindCourse }

func (c *Course) PolicySubject() any { return policy.OwnedSubject{OwnerID: c.CreatedBy} }

func (c *Course) PrepareCreate(creatorID uint) {
	c.ID = 0
	c.CreatedBy = creatorID
	c.DeletedAt = gorm.DeletedAt{}
}

func (c *Course) Clean() {
	c.Code = cleanLine(c.Code)
	c.Name = cleanLine(c.Name)
	c.Semester = cleanLine(c.Semester)
	c.Description = cleanHTML(c.Description)
}

// ValidateCourseProgram rejects courses pointing at a missing program.
func ValidateCourseProgram(db *gorm.DB) func(*Course) error {
	return func(c *Course) error {
		if c.Name == "" {
			return errors.New("course name is required")
		}
		if c.ProgramID == nil {
			return nil
		}
		var n int64
		if err := db.Model(&Program{}).Where("id = ?", *c.ProgramID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return errors.New("program not found")
		}
		return nil
	}
}

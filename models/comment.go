package models

import (
	"time"

	"github.com/cppla/deptcms/policy"
)

// Comment is a reply to a post. Comments are removed outright, not trashed.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index;not null" json:"post_id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
}

// Subject describes the comment as an authorization target owned by its author.
func (c *Comment) Subject() policy.OwnedSubject {
	return policy.OwnedSubject{OwnerID: c.UserID}
}

// Clean sanitizes the content down to the allowed user markup.
func (c *Comment) Clean() {
	c.Content = cleanHTML(c.Content)
}

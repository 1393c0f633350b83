package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
)

// User is an account of the site. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"size:64;not null;index" json:"username"`
	Name         string         `gorm:"size:128" json:"name"`
	Email        string         `gorm:"size:255;index" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         policy.Role    `gorm:"size:16;not null;default:user;index" json:"role"`
	TeacherID    *uint          `gorm:"index" json:"teacher_id"`
	Teacher      *Teacher       `gorm:"foreignKey:TeacherID" json:"teacher,omitempty"`
	Provider     string         `gorm:"size:32" json:"provider"`
	ProviderID   string         `gorm:"size:255" json:"-"`
	AvatarURL    string         `gorm:"size:512" json:"avatar_url"`
	LastLoginAt  *time.Time     `json:"last_login_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate defaults the role of new accounts to user.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if !u.Role.Valid() {
		u.Role = policy.RoleUser
	}
	return nil
}

// Actor is the principal this account acts as.
func (u *User) Actor() policy.Actor {
	return policy.Actor{ID: u.ID, Username: u.Username, Role: u.Role, TeacherID: u.TeacherID}
}

// Subject describes the account as an authorization target.
func (u *User) Subject() policy.UserSubject {
	return policy.UserSubject{ID: u.ID, Role: u.Role}
}

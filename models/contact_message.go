package models

import "time"

// ContactStatus tracks how far a contact message has been processed.
type ContactStatus string

const (
	ContactNew        ContactStatus = "new"
	ContactInProgress ContactStatus = "in_progress"
	ContactResolved   ContactStatus = "resolved"
	ContactSpam       ContactStatus = "spam"
)

// Valid reports whether s is a known status.
func (s ContactStatus) Valid() bool {
	switch s {
	case ContactNew, ContactInProgress, ContactResolved, ContactSpam:
		return true
	}
	return false
}

// ContactMessage is a message sent through the public contact form.
type ContactMessage struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Name        string        `gorm:"size:128;not null" json:"name"`
	Email       string        `gorm:"size:255;not null;index" json:"email"`
	Phone       string        `gorm:"size:64" json:"phone"`
	Subject     string        `gorm:"size:255" json:"subject"`
	Message     string        `gorm:"type:text;not null" json:"message"`
	Status      ContactStatus `gorm:"size:16;not null;default:new;index" json:"status"`
	Note        string        `gorm:"type:text" json:"note"`
	IP          string        `gorm:"size:64;index" json:"ip"`
	UserAgent   string        `gorm:"size:512" json:"user_agent"`
	ProcessedBy *uint         `gorm:"index" json:"processed_by"`
	Processor   *User         `gorm:"foreignKey:ProcessedBy" json:"processor,omitempty"`
	ProcessedAt *time.Time    `json:"processed_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Clean strips markup from every field.
func (m *ContactMessage) Clean() {
	m.Name = cleanLine(m.Name)
	m.Email = cleanLine(m.Email)
	m.Phone = cleanLine(m.Phone)
	m.Subject = cleanLine(m.Subject)
	m.Message = cleanLine(m.Message)
}

// MarkProcessed moves the message to status and stamps who handled it.
func (m *ContactMessage) MarkProcessed(status ContactStatus, by uint, at time.Time) {
	m.Status = status
	if status == ContactNew {
		m.ProcessedBy = nil
		m.ProcessedAt = nil
		return
	}
	m.ProcessedBy = &by
	m.ProcessedAt = &at
}

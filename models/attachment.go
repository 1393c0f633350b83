package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
)

// AttachableKind names the owner type of an attachment.
type AttachableKind string

const (
	AttachablePost        AttachableKind = "post"
	AttachableLab         AttachableKind = "lab"
	AttachableTeacher     AttachableKind = "teacher"
	AttachableStaff       AttachableKind = "staff"
	AttachableProgram     AttachableKind = "program"
	AttachableCourse      AttachableKind = "course"
	AttachablePublication AttachableKind = "publication"
	AttachableProject     AttachableKind = "project"
)

// AttachableKinds lists every owner type an attachment may hang off.
func AttachableKinds() []AttachableKind {
	return []AttachableKind{
		AttachablePost, AttachableLab, AttachableTeacher, AttachableStaff,
		AttachableProgram, AttachableCourse, AttachablePublication, AttachableProject,
	}
}

// ParseAttachableKind validates a kind coming from a request.
func ParseAttachableKind(s string) (AttachableKind, bool) {
	for _, k := range AttachableKinds() {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// AttachmentType classifies attachments.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentDocument AttachmentType = "document"
	AttachmentLink     AttachmentType = "link"
)

// Valid reports whether t is a known type.
func (t AttachmentType) Valid() bool {
	switch t {
	case AttachmentImage, AttachmentDocument, AttachmentLink:
		return true
	}
	return false
}

// Attachment is a file or link owned by another record.
//
// FileURL may hold a disk relative path ("uploads/a.pdf"), a public path
// ("/storage/uploads/a.pdf") or an absolute URL. ExternalURL is only used
// when there is no file.
type Attachment struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	AttachableType AttachableKind `gorm:"size:32;not null;index:idx_attachable" json:"attachable_type"`
	AttachableID   uint           `gorm:"not null;index:idx_attachable" json:"attachable_id"`
	Type           AttachmentType `gorm:"size:16;not null;default:document" json:"type"`
	Title          string         `gorm:"size:255" json:"title"`
	FileURL        string         `gorm:"size:1024" json:"file_url"`
	ExternalURL    string         `gorm:"size:1024" json:"external_url"`
	MimeType       string         `gorm:"size:128" json:"mime_type"`
	Size           int64          `gorm:"not null;default:0" json:"size"`
	SortOrder      int            `gorm:"not null;default:0" json:"sort_order"`
	CreatedBy      uint           `gorm:"index" json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// Subject describes the attachment as an authorization target.
func (a *Attachment) Subject() policy.OwnedSubject {
	return policy.OwnedSubject{OwnerID: a.CreatedBy}
}

// Clean trims the text fields and fills the type.
func (a *Attachment) Clean() {
	a.Title = cleanLine(a.Title)
	if !a.Type.Valid() {
		if a.FileURL == "" && a.ExternalURL != "" {
			a.Type = AttachmentLink
		} else {
			a.Type = AttachmentDocument
		}
	}
}

package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
)

// PostStatus is the publication state of a bulletin post.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
	PostArchived  PostStatus = "archived"
)

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	switch s {
	case PostDraft, PostPublished, PostArchived:
		return true
	}
	return false
}

// SourceType tells whether a post carries its own content or points elsewhere.
type SourceType string

const (
	SourceManual SourceType = "manual"
	SourceLink   SourceType = "link"
)

// Post is a department bulletin entry such as a notice or a news item.
type Post struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Slug        string         `gorm:"size:191;index" json:"slug"`
	Summary     string         `gorm:"size:512" json:"summary"`
	Content     string         `gorm:"type:text" json:"content"`
	Category    string         `gorm:"size:64;index" json:"category"`
	Status      PostStatus     `gorm:"size:16;not null;default:draft;index" json:"status"`
	SourceType  SourceType     `gorm:"size:16;not null;default:manual" json:"source_type"`
	SourceURL   string         `gorm:"size:1024" json:"source_url"`
	CoverImage  string         `gorm:"size:1024" json:"cover_image"`
	Pinned      bool           `gorm:"not null;default:false" json:"pinned"`
	LabID       *uint          `gorm:"index" json:"lab_id"`
	CreatedBy   uint           `gorm:"index;not null" json:"created_by"`
	Author      *User          `gorm:"foreignKey:CreatedBy" json:"author,omitempty"`
	PublishedAt *time.Time     `gorm:"index" json:"published_at"`
	Views       int64          `gorm:"not null;default:0" json:"views"`
	Attachments []Attachment   `gorm:"polymorphic:Attachable;polymorphicValue:post" json:"attachments,omitempty"`
	Comments    []Comment      `json:"comments,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// IsPublished reports whether the post is visible to the public.
func (p *Post) IsPublished() bool {
	return p.Status == PostPublished && (p.PublishedAt == nil || !p.PublishedAt.After(time.Now()))
}

// Subject describes the post as an authorization target. Visibility follows
// the status alone; scheduling only affects public listings and caching.
func (p *Post) Subject() policy.PostSubject {
	return policy.PostSubject{OwnerID: p.CreatedBy, Published: p.Status == PostPublished}
}

// Publish marks the post published at the given time. A future time schedules it.
func (p *Post) Publish(at time.Time) {
	p.Status = PostPublished
	p.PublishedAt = &at
}

// Unpublish returns the post to draft.
func (p *Post) Unpublish() {
	p.Status = PostDraft
	p.PublishedAt = nil
}

// Clean trims and sanitizes the editable fields.
func (p *Post) Clean() {
	p.Title = cleanLine(p.Title)
	p.Summary = cleanLine(p.Summary)
	p.Category = cleanLine(p.Category)
	p.Content = cleanHTML(p.Content)
	if p.SourceType == "" {
		p.SourceType = SourceManual
	}
	if !p.Status.Valid() {
		p.Status = PostDraft
	}
}

// PostCategory is a named bucket for posts, managed by admins.
type PostCategory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:64;not null;uniqueIndex" json:"name"`
	Slug      string    `gorm:"size:64;index" json:"slug"`
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

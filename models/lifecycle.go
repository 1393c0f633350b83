package models

import (
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/utils"
)

// Lifecycle is the soft-delete state of a record: active -> trashed -> purged.
// Purged rows no longer exist, so only active and trashed are ever observed.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleTrashed Lifecycle = "trashed"
	LifecyclePurged  Lifecycle = "purged"
)

// LifecycleOf derives the state from a soft-delete column.
func LifecycleOf(deletedAt gorm.DeletedAt) Lifecycle {
	if deletedAt.Valid {
		return LifecycleTrashed
	}
	return LifecycleActive
}

// Managed is implemented by records served through the generic resource endpoints.
type Managed interface {
	ResourceKind() policy.Kind
	PolicySubject() any
	// PrepareCreate clears client supplied identity fields and stamps the creator.
	PrepareCreate(creatorID uint)
	// Clean trims and sanitizes user supplied text.
	Clean()
}

func cleanLine(s string) string {
	return strings.TrimSpace(utils.SanitizeStrict(s))
}

func cleanHTML(s string) string {
	return utils.Sanitize(strings.TrimSpace(s))
}

func normalizeJSONList(v datatypes.JSON) datatypes.JSON {
	if len(v) == 0 || string(v) == "null" {
		return datatypes.JSON("[]")
	}
	return v
}

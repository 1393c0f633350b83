package repository

import (
	"gorm.io/gorm"

	"github.com/cppla/deptcms/models"
)

// PurgeAttachments removes the attachment rows owned by a purged record.
// onRow, when set, sees each row first so its file can be removed.
func PurgeAttachments(kind models.AttachableKind, onRow func(models.Attachment)) PurgeHook {
	return func(tx *gorm.DB, id uint) error {
		var rows []models.Attachment
		if err := tx.Unscoped().Where("attachable_type = ? AND attachable_id = ?", kind, id).Find(&rows).Error; err != nil {
			return err
		}
		if onRow != nil {
			for _, r := range rows {
				onRow(r)
			}
		}
		return tx.Unscoped().Where("attachable_type = ? AND attachable_id = ?", kind, id).Delete(&models.Attachment{}).Error
	}
}

// PurgeJoinRows clears rows of a many2many join table that point at a purged record.
func PurgeJoinRows(table, column string) PurgeHook {
	return func(tx *gorm.DB, id uint) error {
		return tx.Exec("DELETE FROM "+table+" WHERE "+column+" = ?", id).Error
	}
}

// PurgeComments deletes the comments whose column points at a purged record.
func PurgeComments(column string) PurgeHook {
	return func(tx *gorm.DB, id uint) error {
		return tx.Where(column+" = ?", id).Delete(&models.Comment{}).Error
	}
}

// DetachLabPosts keeps the posts of a purged lab but clears their lab.
func DetachLabPosts(tx *gorm.DB, labID uint) error {
	return tx.Unscoped().Model(&models.Post{}).Where("lab_id = ?", labID).Update("lab_id", nil).Error
}

// UnlinkTeacherUsers clears the teacher link of accounts of a purged profile.
func UnlinkTeacherUsers(tx *gorm.DB, teacherID uint) error {
	return tx.Unscoped().Model(&models.User{}).Where("teacher_id = ?", teacherID).Update("teacher_id", nil).Error
}

// OwnedRowHooks returns the purge hooks every purge of a model needs,
// besides attachment removal.
func OwnedRowHooks(model interface{}) []PurgeHook {
	switch model.(type) {
	case *models.Post:
		return []PurgeHook{PurgeComments("post_id")}
	case *models.Lab:
		return []PurgeHook{PurgeJoinRows("lab_teachers", "lab_id"), DetachLabPosts}
	case *models.Teacher:
		return []PurgeHook{PurgeJoinRows("lab_teachers", "teacher_id"), UnlinkTeacherUsers}
	case *models.User:
		return []PurgeHook{PurgeComments("user_id")}
	}
	return nil
}

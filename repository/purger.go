package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/utils"
)

// Purger permanently removes rows that stayed in the trash longer than Retention.
type Purger struct {
	DB        *gorm.DB
	Retention time.Duration
	Interval  time.Duration
	// OnAttachment sees every purged attachment so its file can be deleted.
	OnAttachment func(models.Attachment)
}

// trashable lists soft deleted models with the attachable kind they own.
// Attachments go first so purging owners below cannot orphan them.
var trashable = []struct {
	model interface{}
	kind  models.AttachableKind
}{
	{&models.Post{}, models.AttachablePost},
	{&models.Lab{}, models.AttachableLab},
	{&models.Teacher{}, models.AttachableTeacher},
	{&models.Staff{}, models.AttachableStaff},
	{&models.Program{}, models.AttachableProgram},
	{&models.Course{}, models.AttachableCourse},
	{&models.Publication{}, models.AttachablePublication},
	{&models.Project{}, models.AttachableProject},
	{&models.User{}, ""},
}

// RunOnce purges everything trashed before now-Retention and returns the row count.
func (p *Purger) RunOnce(ctx context.Context) (int64, error) {
	if p.Retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-p.Retention)
	db := p.DB.WithContext(ctx)
	var total int64

	var atts []models.Attachment
	if err := db.Unscoped().Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).Find(&atts).Error; err != nil {
		return total, err
	}
	for _, a := range atts {
		if p.OnAttachment != nil {
			p.OnAttachment(a)
		}
		if err := db.Unscoped().Delete(&models.Attachment{}, a.ID).Error; err != nil {
			return total, err
		}
		total++
	}

	for _, t := range trashable {
		var ids []uint
		if err := db.Unscoped().Model(t.model).Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).Pluck("id", &ids).Error; err != nil {
			return total, err
		}
		for _, id := range ids {
			err := db.Transaction(func(tx *gorm.DB) error {
				if t.kind != "" {
					if err := PurgeAttachments(t.kind, p.OnAttachment)(tx, id); err != nil {
						return err
					}
				}
				for _, hook := range OwnedRowHooks(t.model) {
					if err := hook(tx, id); err != nil {
						return err
					}
				}
				return tx.Unscoped().Delete(t.model, id).Error
			})
			if err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}

// Start runs the purger every Interval until ctx is done. It sleeps first so
// startup is not slowed down.
func (p *Purger) Start(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			n, err := p.RunOnce(ctx)
			if err != nil {
				utils.Sugar.Warnw("trash purge failed", "error", err)
				continue
			}
			if n > 0 {
				utils.Sugar.Infow("trash purged", "rows", n)
			}
		}
	}()
}

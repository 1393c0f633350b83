package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
)

// Attachable is the owner of an attachment, reduced to what authorization needs.
type Attachable struct {
	Kind    policy.Kind
	ID      uint
	Subject any
}

// LookupAttachable loads the owner of an attachment. Trashed owners are not found.
func LookupAttachable(ctx context.Context, db *gorm.DB, kind models.AttachableKind, id uint) (Attachable, error) {
	tx := db.WithContext(ctx)
	var err error
	out := Attachable{ID: id}
	switch kind {
	case models.AttachablePost:
		var p models.Post
		err = tx.First(&p, id).Error
		out.Kind, out.Subject = policy.KindPost, p.Subject()
	case models.AttachableLab:
		var l models.Lab
		err = tx.Preload("Teachers").First(&l, id).Error
		out.Kind, out.Subject = policy.KindLab, l.Subject()
	case models.AttachableTeacher:
		var t models.Teacher
		err = tx.First(&t, id).Error
		out.Kind, out.Subject = policy.KindTeacher, t.PolicySubject()
	case models.AttachableStaff:
		var s models.Staff
		err = tx.First(&s, id).Error
		out.Kind, out.Subject = policy.KindStaff, s.PolicySubject()
	case models.AttachableProgram:
		var p models.Program
		err = tx.First(&p, id).Error
		out.Kind, out.Subject = policy.KindProgram, p.PolicySubject()
	case models.AttachableCourse:
		var c models.Course
		err = tx.First(&c, id).Error
		out.Kind, out.Subject = policy.KindCourse, c.PolicySubject()
	case models.AttachablePublication:
		var p models.Publication
		err = tx.First(&p, id).Error
		out.Kind, out.Subject = policy.KindPublication, p.PolicySubject()
	case models.AttachableProject:
		var p models.Project
		err = tx.First(&p, id).Error
		out.Kind, out.Subject = policy.KindProject, p.PolicySubject()
	default:
		return Attachable{}, ErrNotFound
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Attachable{}, ErrNotFound
		}
		return Attachable{}, err
	}
	return out, nil
}

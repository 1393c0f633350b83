package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
)

// NewActorResolver loads actors from the users table. Trashed accounts are not found.
func NewActorResolver(db *gorm.DB) policy.ActorResolver {
	return policy.ResolverFunc(func(ctx context.Context, userID uint) (policy.Actor, error) {
		var u models.User
		err := db.WithContext(ctx).Select("id", "username", "role", "teacher_id").First(&u, userID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return policy.Actor{}, ErrNotFound
			}
			return policy.Actor{}, err
		}
		return u.Actor(), nil
	})
}

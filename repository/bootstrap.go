package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/utils"
)

// EnsureAdmins promotes the configured usernames to admin. Missing accounts
// are created with initialPassword; when it is empty they are skipped.
func EnsureAdmins(ctx context.Context, db *gorm.DB, usernames []string, initialPassword string) error {
	for _, name := range usernames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var user models.User
		err := db.WithContext(ctx).Unscoped().Where("username = ?", name).First(&user).Error
		switch {
		case err == nil:
			updates := map[string]interface{}{"role": policy.RoleAdmin, "deleted_at": nil}
			if err := db.WithContext(ctx).Unscoped().Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
				return err
			}
			if user.Role != policy.RoleAdmin {
				utils.Sugar.Infow("promoted configured admin", "username", name)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if initialPassword == "" {
				utils.Sugar.Warnw("configured admin does not exist and no initial password is set", "username", name)
				continue
			}
			hash, err := utils.HashPassword(initialPassword)
			if err != nil {
				return err
			}
			user = models.User{Username: name, Name: name, PasswordHash: hash, Role: policy.RoleAdmin, Provider: "local"}
			if err := db.WithContext(ctx).Create(&user).Error; err != nil {
				return err
			}
			utils.Sugar.Infow("created configured admin", "username", name)
		default:
			return err
		}
	}
	return nil
}

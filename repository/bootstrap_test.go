package repository

import (
	"context"
	"testing"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/utils"
)

func TestEnsureAdmins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	existing := models.User{Username: "dean", Role: policy.RoleTeacher}
	db.Create(&existing)

	if err := EnsureAdmins(ctx, db, []string{"dean", " root ", ""}, "s3cret-pass"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	var dean models.User
	db.First(&dean, existing.ID)
	if dean.Role != policy.RoleAdmin {
		t.Errorf("dean role = %s, want admin", dean.Role)
	}
	var root models.User
	if err := db.Where("username = ?", "root").First(&root).Error; err != nil {
		t.Fatalf("root not created: %v", err)
	}
	if root.Role != policy.RoleAdmin || !utils.CheckPassword(root.PasswordHash, "s3cret-pass") {
		t.Errorf("root = %+v, want admin with initial password", root)
	}

	if err := EnsureAdmins(ctx, db, []string{"ghost"}, ""); err != nil {
		t.Fatalf("ensure without password: %v", err)
	}
	var n int64
	db.Model(&models.User{}).Where("username = ?", "ghost").Count(&n)
	if n != 0 {
		t.Errorf("ghost created without a password")
	}
}

package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/middleware"
	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/repository"
	"github.com/cppla/deptcms/utils"
)

// UserController manages accounts, their roles and teacher profile links.
type UserController struct {
	db       *gorm.DB
	gate     *policy.Gate
	users    *repository.Store[models.User]
	resolver *policy.CachedResolver
}

// NewUserController creates a new UserController instance. resolver is
// invalidated whenever a change affects what an account may do.
func NewUserController(db *gorm.DB, gate *policy.Gate, resolver *policy.CachedResolver) *UserController {
	return &UserController{
		db:       db,
		gate:     gate,
		users:    repository.New[models.User](db, repository.OwnedRowHooks(&models.User{})...),
		resolver: resolver,
	}
}

func (u *UserController) forget(id uint) {
	if u.resolver != nil {
		u.resolver.Invalidate(id)
	}
}

// List returns accounts. Admins see everyone; teachers see plain users.
func (u *UserController) List(ctx *gin.Context) {
	if !authorize(ctx, u.gate, policy.ActionViewAny, policy.KindUser, nil) {
		return
	}
	actor := middleware.ActorFrom(ctx)
	q := listQuery(ctx, actor.IsAdmin())
	q.SearchColumns = []string{"username", "name", "email"}

	var scopes []repository.Scope
	if !actor.IsAdmin() {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("role = ?", policy.RoleUser) })
	} else if role, ok := policy.ParseRole(ctx.Query("role")); ok {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("role = ?", role) })
	}

	page, err := u.users.List(ctx.Request.Context(), q, scopes...)
	if err != nil {
		storeError(ctx, err, "users")
		return
	}
	items := make([]gin.H, 0, len(page.Items))
	for _, user := range page.Items {
		items = append(items, userResponse(user))
	}
	resp := paged(page)
	resp["items"] = items
	utils.Success(ctx, resp)
}

func (u *UserController) load(ctx *gin.Context, withTrashed bool) (*models.User, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return nil, false
	}
	user, err := u.users.Find(ctx.Request.Context(), id, withTrashed, "Teacher")
	if err != nil {
		storeError(ctx, err, "user")
		return nil, false
	}
	return user, true
}

// Show returns one account.
func (u *UserController) Show(ctx *gin.Context) {
	user, ok := u.load(ctx, middleware.ActorFrom(ctx).IsAdmin())
	if !ok {
		return
	}
	if !authorize(ctx, u.gate, policy.ActionView, policy.KindUser, user.Subject()) {
		return
	}
	resp := userResponse(*user)
	resp["teacher"] = user.Teacher
	resp["lifecycle"] = models.LifecycleOf(user.DeletedAt)
	utils.Success(ctx, resp)
}

// Create adds an account with a password. The admin role cannot be granted here.
func (u *UserController) Create(ctx *gin.Context) {
	var req struct {
		Username string      `json:"username" binding:"required,min=3,max=64"`
		Password string      `json:"password" binding:"required,min=8,max=72"`
		Name     string      `json:"name" binding:"max=128"`
		Email    string      `json:"email" binding:"omitempty,email,max=255"`
		Role     policy.Role `json:"role" binding:"omitempty,role"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	role := req.Role
	if role == "" {
		role = policy.RoleUser
	}
	if !authorize(ctx, u.gate, policy.ActionCreate, policy.KindUser, nil) ||
		!authorize(ctx, u.gate, policy.ActionAssignRole, policy.KindUser, policy.UserSubject{Role: policy.RoleUser, NewRole: role}) {
		return
	}

	username := strings.TrimSpace(req.Username)
	if sanitizeUsername(username) != strings.ToLower(username) {
		utils.Error(ctx, http.StatusBadRequest, 40050, "username may only contain letters, digits and underscores")
		return
	}
	var taken int64
	u.db.Unscoped().Model(&models.User{}).Where("username = ?", username).Count(&taken)
	if taken > 0 {
		utils.Error(ctx, http.StatusConflict, 40950, "username already exists")
		return
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to hash password")
		return
	}

	user := models.User{
		Username:     username,
		Name:         strings.TrimSpace(utils.SanitizeStrict(req.Name)),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         role,
		Provider:     "local",
	}
	if err := u.users.Create(ctx.Request.Context(), &user); err != nil {
		storeError(ctx, err, "user")
		return
	}
	utils.Success(ctx, gin.H{"user": userResponse(user)})
}

// Update edits the display fields of an account. Admins may also set a new password.
func (u *UserController) Update(ctx *gin.Context) {
	user, ok := u.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, u.gate, policy.ActionUpdate, policy.KindUser, user.Subject()) {
		return
	}
	var req struct {
		Name     *string `json:"name" binding:"omitempty,max=128"`
		Email    *string `json:"email" binding:"omitempty,email,max=255"`
		Password string  `json:"password" binding:"omitempty,min=8,max=72"`
	}
	if !bindJSON(ctx, &req) {
		return
	}

	changes := map[string]interface{}{}
	if req.Name != nil {
		user.Name = strings.TrimSpace(utils.SanitizeStrict(*req.Name))
		changes["name"] = user.Name
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
		changes["email"] = user.Email
	}
	if req.Password != "" {
		if !middleware.ActorFrom(ctx).IsAdmin() {
			utils.Error(ctx, http.StatusBadRequest, 40051, "use the change password endpoint")
			return
		}
		hash, err := utils.HashPassword(req.Password)
		if err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to hash password")
			return
		}
		user.PasswordHash = hash
		changes["password_hash"] = hash
	}
	if len(changes) > 0 {
		if err := u.db.WithContext(ctx.Request.Context()).Model(&models.User{ID: user.ID}).Updates(changes).Error; err != nil {
			storeError(ctx, err, "user")
			return
		}
	}
	utils.Success(ctx, gin.H{"user": userResponse(*user)})
}

// Delete moves an account to the trash. Its tokens stop resolving to a role.
func (u *UserController) Delete(ctx *gin.Context) {
	u.lifecycle(ctx, policy.ActionDelete, false, u.users.Trash, "user moved to trash")
}

// Restore brings a trashed account back.
func (u *UserController) Restore(ctx *gin.Context) {
	u.lifecycle(ctx, policy.ActionRestore, true, u.users.Restore, "user restored")
}

// ForceDelete permanently removes a trashed account and its comments.
func (u *UserController) ForceDelete(ctx *gin.Context) {
	u.lifecycle(ctx, policy.ActionForceDelete, true, u.users.Purge, "user permanently deleted")
}

func (u *UserController) lifecycle(ctx *gin.Context, action policy.Action, withTrashed bool, op func(context.Context, uint) error, message string) {
	user, ok := u.load(ctx, withTrashed)
	if !ok {
		return
	}
	if !authorize(ctx, u.gate, action, policy.KindUser, user.Subject()) {
		return
	}
	if err := op(ctx.Request.Context(), user.ID); err != nil {
		storeError(ctx, err, "user")
		return
	}
	u.forget(user.ID)
	utils.Success(ctx, gin.H{"message": message, "id": user.ID})
}

// AssignRole changes the role of an account.
func (u *UserController) AssignRole(ctx *gin.Context) {
	user, ok := u.load(ctx, false)
	if !ok {
		return
	}
	var req struct {
		Role policy.Role `json:"role" binding:"required,role"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	subject := user.Subject()
	subject.NewRole = req.Role
	if !authorize(ctx, u.gate, policy.ActionAssignRole, policy.KindUser, subject) {
		return
	}
	if err := u.db.WithContext(ctx.Request.Context()).Model(user).UpdateColumn("role", req.Role).Error; err != nil {
		storeError(ctx, err, "user")
		return
	}
	user.Role = req.Role
	u.forget(user.ID)
	utils.Success(ctx, gin.H{"user": userResponse(*user)})
}

// LinkTeacher links the account to a teacher profile, or unlinks it when
// teacher_id is null. A profile belongs to at most one account.
func (u *UserController) LinkTeacher(ctx *gin.Context) {
	user, ok := u.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, u.gate, policy.ActionUpdate, policy.KindUser, user.Subject()) {
		return
	}
	var req struct {
		TeacherID *uint `json:"teacher_id"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	if req.TeacherID != nil {
		var teacher models.Teacher
		if err := u.db.First(&teacher, *req.TeacherID).Error; err != nil {
			utils.Error(ctx, http.StatusNotFound, 40403, "teacher not found")
			return
		}
		var linked int64
		u.db.Model(&models.User{}).Where("teacher_id = ? AND id <> ?", teacher.ID, user.ID).Count(&linked)
		if linked > 0 {
			utils.Error(ctx, http.StatusConflict, 40951, "teacher profile is linked to another account")
			return
		}
	}
	if err := u.db.WithContext(ctx.Request.Context()).Model(user).UpdateColumn("teacher_id", req.TeacherID).Error; err != nil {
		storeError(ctx, err, "user")
		return
	}
	user.TeacherID = req.TeacherID
	u.forget(user.ID)
	utils.Success(ctx, gin.H{"user": userResponse(*user)})
}

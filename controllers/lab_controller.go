package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/middleware"
	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/repository"
	"github.com/cppla/deptcms/utils"
)

// LabController serves research labs, their members and their posts.
type LabController struct {
	db   *gorm.DB
	gate *policy.Gate
	labs *repository.Store[models.Lab]
}

// NewLabController creates a new LabController instance.
func NewLabController(db *gorm.DB, gate *policy.Gate, onAttachment func(models.Attachment)) *LabController {
	return &LabController{
		db:   db,
		gate: gate,
		labs: repository.New[models.Lab](db, append(
			[]repository.PurgeHook{repository.PurgeAttachments(models.AttachableLab, onAttachment)},
			repository.OwnedRowHooks(&models.Lab{})...,
		)...),
	}
}

func invalidateLabs() {
	utils.InvalidateByPrefix(utils.CacheLabsPrefix)
}

type labRequest struct {
	Name        string `json:"name" binding:"required,max=191"`
	Slug        string `json:"slug" binding:"omitempty,slug,max=191"`
	Description string `json:"description"`
	Location    string `json:"location" binding:"max=255"`
	Website     string `json:"website" binding:"omitempty,weburl,max=1024"`
	CoverImage  string `json:"cover_image" binding:"max=1024"`
	LeaderID    *uint  `json:"leader_id"`
}

func (r labRequest) apply(l *models.Lab) {
	l.Name = r.Name
	l.Slug = r.Slug
	l.Description = r.Description
	l.Location = r.Location
	l.Website = r.Website
	l.CoverImage = r.CoverImage
	l.LeaderID = r.LeaderID
	l.Clean()
}

// List returns labs with their members for the public site.
func (l *LabController) List(ctx *gin.Context) {
	q := listQuery(ctx, false)
	cacheKey := ""
	if q.Search == "" {
		cacheKey = fmt.Sprintf("%slist:page=%d:size=%d", utils.CacheLabsPrefix, q.Page, q.PageSize)
		if utils.ServeCached(ctx, cacheKey) {
			return
		}
	}
	q.SearchColumns = []string{"name", "description"}
	q.Order = "name ASC, id ASC"
	q.Preload = []string{"Teachers"}
	page, err := l.labs.List(ctx.Request.Context(), q)
	if err != nil {
		storeError(ctx, err, "labs")
		return
	}
	if cacheKey != "" {
		utils.SuccessCached(ctx, cacheKey, paged(page), time.Hour)
		return
	}
	utils.Success(ctx, paged(page))
}

// Show returns a lab with members and attachments.
func (l *LabController) Show(ctx *gin.Context) {
	lab, ok := l.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, l.gate, policy.ActionView, policy.KindLab, lab.Subject()) {
		return
	}
	utils.Success(ctx, gin.H{"lab": lab})
}

// ManageList lists labs for the panel, trashed ones on request.
func (l *LabController) ManageList(ctx *gin.Context) {
	if !authorize(ctx, l.gate, policy.ActionViewAny, policy.KindLab, nil) {
		return
	}
	q := listQuery(ctx, true)
	q.SearchColumns = []string{"name", "description"}
	q.Preload = []string{"Teachers"}
	page, err := l.labs.List(ctx.Request.Context(), q)
	if err != nil {
		storeError(ctx, err, "labs")
		return
	}
	utils.Success(ctx, paged(page))
}

func (l *LabController) load(ctx *gin.Context, withTrashed bool) (*models.Lab, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return nil, false
	}
	lab, err := l.labs.Find(ctx.Request.Context(), id, withTrashed, "Teachers", "Attachments")
	if err != nil {
		storeError(ctx, err, "lab")
		return nil, false
	}
	return lab, true
}

// Create adds a lab.
func (l *LabController) Create(ctx *gin.Context) {
	if !authorize(ctx, l.gate, policy.ActionCreate, policy.KindLab, nil) {
		return
	}
	var req labRequest
	if !bindJSON(ctx, &req) {
		return
	}
	lab := models.Lab{CreatedBy: middleware.ActorFrom(ctx).ID}
	req.apply(&lab)
	if err := l.labs.Create(ctx.Request.Context(), &lab); err != nil {
		storeError(ctx, err, "lab")
		return
	}
	invalidateLabs()
	utils.Success(ctx, gin.H{"lab": lab})
}

// Update edits a lab. Member teachers may edit their own lab.
func (l *LabController) Update(ctx *gin.Context) {
	lab, ok := l.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, l.gate, policy.ActionUpdate, policy.KindLab, lab.Subject()) {
		return
	}
	var req labRequest
	if !bindJSON(ctx, &req) {
		return
	}
	req.apply(lab)
	if err := l.labs.Save(ctx.Request.Context(), lab); err != nil {
		storeError(ctx, err, "lab")
		return
	}
	invalidateLabs()
	utils.Success(ctx, gin.H{"lab": lab})
}

// Delete moves a lab to the trash.
func (l *LabController) Delete(ctx *gin.Context) {
	l.lifecycle(ctx, policy.ActionDelete, false, l.labs.Trash, "lab moved to trash")
}

// Restore brings a trashed lab back.
func (l *LabController) Restore(ctx *gin.Context) {
	l.lifecycle(ctx, policy.ActionRestore, true, l.labs.Restore, "lab restored")
}

// ForceDelete permanently removes a trashed lab.
func (l *LabController) ForceDelete(ctx *gin.Context) {
	l.lifecycle(ctx, policy.ActionForceDelete, true, l.labs.Purge, "lab permanently deleted")
}

func (l *LabController) lifecycle(ctx *gin.Context, action policy.Action, withTrashed bool, op func(context.Context, uint) error, message string) {
	lab, ok := l.load(ctx, withTrashed)
	if !ok {
		return
	}
	if !authorize(ctx, l.gate, action, policy.KindLab, lab.Subject()) {
		return
	}
	if err := op(ctx.Request.Context(), lab.ID); err != nil {
		storeError(ctx, err, "lab")
		return
	}
	invalidateLabs()
	utils.Success(ctx, gin.H{"message": message, "id": lab.ID})
}

// AddMember links a teacher profile to the lab.
func (l *LabController) AddMember(ctx *gin.Context) {
	lab, ok := l.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, l.gate, policy.ActionManageMembers, policy.KindLab, lab.Subject()) {
		return
	}
	var req struct {
		TeacherID uint `json:"teacher_id" binding:"required,gt=0"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	var teacher models.Teacher
	if err := l.db.First(&teacher, req.TeacherID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40403, "teacher not found")
		return
	}
	if err := l.db.Model(lab).Association("Teachers").Append(&teacher); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to add member")
		return
	}
	invalidateLabs()
	utils.Success(ctx, gin.H{"lab_id": lab.ID, "teacher_id": teacher.ID})
}

// RemoveMember unlinks a teacher profile from the lab.
func (l *LabController) RemoveMember(ctx *gin.Context) {
	lab, ok := l.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, l.gate, policy.ActionManageMembers, policy.KindLab, lab.Subject()) {
		return
	}
	teacherID, ok := parseID(ctx, "teacherId")
	if !ok {
		return
	}
	if err := l.db.Model(lab).Association("Teachers").Delete(&models.Teacher{ID: teacherID}); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to remove member")
		return
	}
	invalidateLabs()
	utils.Success(ctx, gin.H{"lab_id": lab.ID, "teacher_id": teacherID})
}

// Analytics summarises a lab: members, posts, publications, projects and page views.
func (l *LabController) Analytics(ctx *gin.Context) {
	lab, ok := l.load(ctx, true)
	if !ok {
		return
	}
	if !authorize(ctx, l.gate, policy.ActionViewAnalytics, policy.KindLab, lab.Subject()) {
		return
	}
	var posts, published, publications, projects int64
	l.db.Model(&models.Post{}).Where("lab_id = ?", lab.ID).Count(&posts)
	l.db.Model(&models.Post{}).Scopes(publishedScope).Where("lab_id = ?", lab.ID).Count(&published)
	l.db.Model(&models.Publication{}).Where("lab_id = ?", lab.ID).Count(&publications)
	l.db.Model(&models.Project{}).Where("lab_id = ?", lab.ID).Count(&projects)

	utils.Success(ctx, gin.H{
		"lab_id":          lab.ID,
		"members":         len(lab.Teachers),
		"posts":           posts,
		"published_posts": published,
		"publications":    publications,
		"projects":        projects,
		"page_views":      dailyPageViews(l.db, fmt.Sprintf("/labs/%d", lab.ID), 30),
	})
}

// Posts lists the lab's posts for its managers. Drafts appear only to their
// owner and to admins.
func (l *LabController) Posts(ctx *gin.Context) {
	lab, ok := l.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, l.gate, policy.ActionManagePosts, policy.KindLab, lab.Subject()) {
		return
	}
	actor := middleware.ActorFrom(ctx)
	q := listQuery(ctx, false)
	q.SearchColumns = []string{"title"}
	page, err := repository.New[models.Post](l.db).List(ctx.Request.Context(), q,
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("lab_id = ?", lab.ID)
			if !actor.IsAdmin() {
				db = db.Where("status = ? OR created_by = ?", models.PostPublished, actor.ID)
			}
			return db
		})
	if err != nil {
		storeError(ctx, err, "posts")
		return
	}
	utils.Success(ctx, paged(page))
}

// AttachPost files a post under the lab.
func (l *LabController) AttachPost(ctx *gin.Context) {
	l.setPostLab(ctx, true)
}

// DetachPost removes a post from the lab.
func (l *LabController) DetachPost(ctx *gin.Context) {
	l.setPostLab(ctx, false)
}

func (l *LabController) setPostLab(ctx *gin.Context, attach bool) {
	lab, ok := l.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, l.gate, policy.ActionManagePosts, policy.KindLab, lab.Subject()) {
		return
	}
	postID, ok := parseID(ctx, "postId")
	if !ok {
		return
	}
	var post models.Post
	if err := l.db.First(&post, postID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
		return
	}
	if !authorize(ctx, l.gate, policy.ActionUpdate, policy.KindPost, post.Subject()) {
		return
	}
	var value interface{}
	if attach {
		if post.LabID != nil && *post.LabID != lab.ID {
			utils.Error(ctx, http.StatusConflict, 40941, "post belongs to another lab")
			return
		}
		value = lab.ID
	} else if post.LabID == nil || *post.LabID != lab.ID {
		utils.Error(ctx, http.StatusConflict, 40940, "post does not belong to this lab")
		return
	}
	if err := l.db.Model(&post).UpdateColumn("lab_id", value).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to update post")
		return
	}
	invalidatePosts()
	utils.Success(ctx, gin.H{"lab_id": lab.ID, "post_id": post.ID, "attached": attach})
}

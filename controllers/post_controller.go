package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/middleware"
	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/repository"
	"github.com/cppla/deptcms/utils"
)

const postListTTL = 5 * time.Minute

// PostController manages bulletin posts, their categories and comments.
type PostController struct {
	db    *gorm.DB
	gate  *policy.Gate
	posts *repository.Store[models.Post]
}

// NewPostController creates a new PostController instance. onAttachment
// sees the attachments of force deleted posts.
func NewPostController(db *gorm.DB, gate *policy.Gate, onAttachment func(models.Attachment)) *PostController {
	return &PostController{
		db:   db,
		gate: gate,
		posts: repository.New[models.Post](db, append(
			[]repository.PurgeHook{repository.PurgeAttachments(models.AttachablePost, onAttachment)},
			repository.OwnedRowHooks(&models.Post{})...,
		)...),
	}
}

func publishedScope(db *gorm.DB) *gorm.DB {
	return db.Where("status = ? AND (published_at IS NULL OR published_at <= ?)", models.PostPublished, time.Now())
}

func invalidatePosts() {
	utils.InvalidateByPrefix(utils.CachePostsPrefix)
}

type postRequest struct {
	Title      string            `json:"title" binding:"required,max=255"`
	Slug       string            `json:"slug" binding:"omitempty,slug,max=191"`
	Summary    string            `json:"summary" binding:"max=512"`
	Content    string            `json:"content"`
	Category   string            `json:"category" binding:"max=64"`
	Status     models.PostStatus `json:"status" binding:"omitempty,post_status"`
	SourceType models.SourceType `json:"source_type" binding:"omitempty,source_type"`
	SourceURL  string            `json:"source_url" binding:"omitempty,weburl,max=1024"`
	CoverImage string            `json:"cover_image" binding:"max=1024"`
	Pinned     bool              `json:"pinned"`
	LabID      *uint             `json:"lab_id"`
}

func (r postRequest) apply(p *models.Post) {
	p.Title = r.Title
	p.Slug = r.Slug
	p.Summary = r.Summary
	p.Content = r.Content
	p.Category = r.Category
	p.SourceType = r.SourceType
	p.SourceURL = r.SourceURL
	p.CoverImage = r.CoverImage
	p.Pinned = r.Pinned
	p.LabID = r.LabID
	p.Clean()
}

// ListPublished returns published posts for the public site.
func (p *PostController) ListPublished(ctx *gin.Context) {
	q := listQuery(ctx, false)
	category := strings.TrimSpace(ctx.Query("category"))
	labID := strings.TrimSpace(ctx.Query("lab_id"))

	cacheKey := ""
	if q.Search == "" {
		cacheKey = fmt.Sprintf("%slist:cat=%s:lab=%s:page=%d:size=%d", utils.CachePostsPrefix, category, labID, q.Page, q.PageSize)
		if utils.ServeCached(ctx, cacheKey) {
			return
		}
	}

	q.SearchColumns = []string{"title", "summary"}
	q.Order = "pinned DESC, published_at DESC, id DESC"
	scopes := []repository.Scope{publishedScope}
	if category != "" {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("category = ?", category) })
	}
	if id, err := strconv.ParseUint(labID, 10, 64); err == nil {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("lab_id = ?", id) })
	}

	page, err := p.posts.List(ctx.Request.Context(), q, scopes...)
	if err != nil {
		storeError(ctx, err, "posts")
		return
	}
	if cacheKey != "" {
		utils.SuccessCached(ctx, cacheKey, paged(page), postListTTL)
		return
	}
	utils.Success(ctx, paged(page))
}

// GetPost returns one post with its attachments. Drafts are visible to their author and admins only.
func (p *PostController) GetPost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	cacheKey := fmt.Sprintf("%sdetail:%d", utils.CachePostsPrefix, id)
	if utils.ServeCached(ctx, cacheKey) {
		p.bumpViews(id)
		return
	}

	post, err := p.posts.Find(ctx.Request.Context(), id, false, "Attachments")
	if err != nil {
		storeError(ctx, err, "post")
		return
	}
	if !authorize(ctx, p.gate, policy.ActionView, policy.KindPost, post.Subject()) {
		return
	}
	p.bumpViews(id)

	var comments int64
	p.db.Model(&models.Comment{}).Where("post_id = ?", id).Count(&comments)
	payload := gin.H{"post": post, "comment_count": comments}
	if post.IsPublished() {
		utils.SuccessCached(ctx, cacheKey, payload, postListTTL)
		return
	}
	utils.Success(ctx, payload)
}

func (p *PostController) bumpViews(id uint) {
	if err := p.db.Model(&models.Post{}).Where("id = ?", id).UpdateColumn("views", gorm.Expr("views + 1")).Error; err != nil {
		utils.Sugar.Debugw("bump post views failed", "post_id", id, "error", err)
	}
}

// ManageList lists posts for the panel. Teachers see their own posts, admins all of them.
func (p *PostController) ManageList(ctx *gin.Context) {
	if !authorize(ctx, p.gate, policy.ActionViewAny, policy.KindPost, nil) {
		return
	}
	actor := middleware.ActorFrom(ctx)
	q := listQuery(ctx, true)
	q.SearchColumns = []string{"title", "summary"}
	q.Order = "updated_at DESC, id DESC"

	var scopes []repository.Scope
	if !actor.IsAdmin() {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("created_by = ?", actor.ID) })
	}
	if status := models.PostStatus(ctx.Query("status")); status.Valid() {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", status) })
	}
	if category := strings.TrimSpace(ctx.Query("category")); category != "" {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("category = ?", category) })
	}

	page, err := p.posts.List(ctx.Request.Context(), q, scopes...)
	if err != nil {
		storeError(ctx, err, "posts")
		return
	}
	utils.Success(ctx, paged(page))
}

// ManageShow returns a post for editing, trashed ones included.
func (p *PostController) ManageShow(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	post, err := p.posts.Find(ctx.Request.Context(), id, true, "Attachments", "Author")
	if err != nil {
		storeError(ctx, err, "post")
		return
	}
	if !authorize(ctx, p.gate, policy.ActionView, policy.KindPost, post.Subject()) {
		return
	}
	utils.Success(ctx, gin.H{"post": post, "lifecycle": models.LifecycleOf(post.DeletedAt)})
}

// CreatePost stores a new post. Creating it as published needs the publish permission.
func (p *PostController) CreatePost(ctx *gin.Context) {
	if !authorize(ctx, p.gate, policy.ActionCreate, policy.KindPost, nil) {
		return
	}
	var req postRequest
	if !bindJSON(ctx, &req) {
		return
	}
	actor := middleware.ActorFrom(ctx)

	post := models.Post{CreatedBy: actor.ID, Status: models.PostDraft}
	req.apply(&post)
	if post.Title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title cannot be empty")
		return
	}
	if post.SourceType == models.SourceLink && post.SourceURL == "" {
		utils.Error(ctx, http.StatusBadRequest, 40022, "source_url is required for link posts")
		return
	}
	switch req.Status {
	case models.PostPublished:
		if !authorize(ctx, p.gate, policy.ActionPublish, policy.KindPost, post.Subject()) {
			return
		}
		post.Publish(time.Now())
	case models.PostArchived:
		post.Status = models.PostArchived
	}

	if err := p.posts.Create(ctx.Request.Context(), &post); err != nil {
		storeError(ctx, err, "post")
		return
	}
	invalidatePosts()
	utils.Success(ctx, gin.H{"post": post})
}

// UpdatePost replaces the editable fields. Status changes that publish or
// unpublish need the matching permission.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	post, err := p.posts.Find(ctx.Request.Context(), id, false)
	if err != nil {
		storeError(ctx, err, "post")
		return
	}
	if !authorize(ctx, p.gate, policy.ActionUpdate, policy.KindPost, post.Subject()) {
		return
	}
	var req postRequest
	if !bindJSON(ctx, &req) {
		return
	}

	wasPublished := post.Status == models.PostPublished
	req.apply(post)
	if post.Title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title cannot be empty")
		return
	}
	if req.Status != "" && req.Status != post.Status {
		switch {
		case req.Status == models.PostPublished:
			if !authorize(ctx, p.gate, policy.ActionPublish, policy.KindPost, post.Subject()) {
				return
			}
			post.Publish(time.Now())
		case wasPublished:
			if !authorize(ctx, p.gate, policy.ActionUnpublish, policy.KindPost, post.Subject()) {
				return
			}
			post.Status = req.Status
			post.PublishedAt = nil
		default:
			post.Status = req.Status
		}
	}

	if err := p.posts.Save(ctx.Request.Context(), post); err != nil {
		storeError(ctx, err, "post")
		return
	}
	invalidatePosts()
	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost moves a post to the trash.
func (p *PostController) DeletePost(ctx *gin.Context) {
	p.lifecycle(ctx, policy.ActionDelete, false, p.posts.Trash, "post moved to trash")
}

// RestorePost brings a trashed post back.
func (p *PostController) RestorePost(ctx *gin.Context) {
	p.lifecycle(ctx, policy.ActionRestore, true, p.posts.Restore, "post restored")
}

// ForceDeletePost permanently removes a trashed post with its comments and attachments.
func (p *PostController) ForceDeletePost(ctx *gin.Context) {
	p.lifecycle(ctx, policy.ActionForceDelete, true, p.posts.Purge, "post permanently deleted")
}

func (p *PostController) lifecycle(ctx *gin.Context, action policy.Action, withTrashed bool, op func(context.Context, uint) error, message string) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	post, err := p.posts.Find(ctx.Request.Context(), id, withTrashed)
	if err != nil {
		storeError(ctx, err, "post")
		return
	}
	if !authorize(ctx, p.gate, action, policy.KindPost, post.Subject()) {
		return
	}
	if err := op(ctx.Request.Context(), id); err != nil {
		storeError(ctx, err, "post")
		return
	}
	invalidatePosts()
	utils.Success(ctx, gin.H{"message": message, "id": id})
}

// Publish makes a post public now.
func (p *PostController) Publish(ctx *gin.Context) {
	p.transition(ctx, policy.ActionPublish, func(post *models.Post) error {
		post.Publish(time.Now())
		return nil
	})
}

// Unpublish returns a post to draft.
func (p *PostController) Unpublish(ctx *gin.Context) {
	p.transition(ctx, policy.ActionUnpublish, func(post *models.Post) error {
		post.Unpublish()
		return nil
	})
}

var errScheduleInPast = errors.New("published_at must be in the future")

// Schedule publishes a post at a future time.
func (p *PostController) Schedule(ctx *gin.Context) {
	var req struct {
		PublishedAt time.Time `json:"published_at" binding:"required"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	p.transition(ctx, policy.ActionSchedulePost, func(post *models.Post) error {
		if !req.PublishedAt.After(time.Now()) {
			return errScheduleInPast
		}
		post.Publish(req.PublishedAt)
		return nil
	})
}

func (p *PostController) transition(ctx *gin.Context, action policy.Action, change func(*models.Post) error) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	post, err := p.posts.Find(ctx.Request.Context(), id, false)
	if err != nil {
		storeError(ctx, err, "post")
		return
	}
	if !authorize(ctx, p.gate, action, policy.KindPost, post.Subject()) {
		return
	}
	if err := change(post); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, err.Error())
		return
	}
	if err := p.posts.Save(ctx.Request.Context(), post); err != nil {
		storeError(ctx, err, "post")
		return
	}
	invalidatePosts()
	utils.Success(ctx, gin.H{"post": post})
}

// Bulk applies one action to many posts and reports the result per id.
func (p *PostController) Bulk(ctx *gin.Context) {
	if !authorize(ctx, p.gate, policy.ActionBulkOperations, policy.KindPost, nil) {
		return
	}
	var req struct {
		Action string `json:"action" binding:"required,oneof=publish unpublish archive delete restore"`
		IDs    []uint `json:"ids" binding:"required,min=1,max=200,dive,gt=0"`
	}
	if !bindJSON(ctx, &req) {
		return
	}

	rctx := ctx.Request.Context()
	results := make([]gin.H, 0, len(req.IDs))
	done := 0
	for _, id := range utils.Unique(req.IDs) {
		var err error
		switch req.Action {
		case "delete":
			err = p.posts.Trash(rctx, id)
		case "restore":
			err = p.posts.Restore(rctx, id)
		default:
			var post *models.Post
			post, err = p.posts.Find(rctx, id, false)
			if err == nil {
				switch req.Action {
				case "publish":
					post.Publish(time.Now())
				case "unpublish":
					post.Unpublish()
				case "archive":
					post.Status = models.PostArchived
				}
				err = p.posts.Save(rctx, post)
			}
		}
		if err != nil {
			results = append(results, gin.H{"id": id, "ok": false, "error": err.Error()})
			continue
		}
		done++
		results = append(results, gin.H{"id": id, "ok": true})
	}
	invalidatePosts()
	utils.Success(ctx, gin.H{"action": req.Action, "affected": done, "results": results})
}

// Analytics reports views, comments and daily page views of a post.
func (p *PostController) Analytics(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	post, err := p.posts.Find(ctx.Request.Context(), id, true)
	if err != nil {
		storeError(ctx, err, "post")
		return
	}
	if !authorize(ctx, p.gate, policy.ActionViewAnalytics, policy.KindPost, post.Subject()) {
		return
	}
	days, _ := strconv.Atoi(ctx.DefaultQuery("days", "30"))
	if days <= 0 || days > 365 {
		days = 30
	}
	var comments int64
	p.db.Model(&models.Comment{}).Where("post_id = ?", id).Count(&comments)

	utils.Success(ctx, gin.H{
		"post_id":    post.ID,
		"views":      post.Views,
		"comments":   comments,
		"page_views": dailyPageViews(p.db, fmt.Sprintf("/posts/%d", id), days),
	})
}

func dailyPageViews(db *gorm.DB, path string, days int) []models.DayCount {
	out, err := models.DailyViews(db, path, days)
	if err != nil {
		utils.Sugar.Warnw("load page views failed", "path", path, "error", err)
	}
	return out
}

// ListCategories returns the post categories in display order.
func (p *PostController) ListCategories(ctx *gin.Context) {
	key := utils.CachePostsPrefix + "categories"
	if utils.ServeCached(ctx, key) {
		return
	}
	var cats []models.PostCategory
	if err := p.db.Order("sort_order ASC, id ASC").Find(&cats).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to list categories")
		return
	}
	utils.SuccessCached(ctx, key, gin.H{"items": cats}, time.Hour)
}

type categoryRequest struct {
	Name      string `json:"name" binding:"required,max=64"`
	Slug      string `json:"slug" binding:"omitempty,slug,max=64"`
	SortOrder int    `json:"sort_order"`
}

// SaveCategory creates a category, or updates it when the route has an id.
func (p *PostController) SaveCategory(ctx *gin.Context) {
	if !authorize(ctx, p.gate, policy.ActionManageCategories, policy.KindPost, nil) {
		return
	}
	var req categoryRequest
	if !bindJSON(ctx, &req) {
		return
	}
	cat := models.PostCategory{}
	if ctx.Param("id") != "" {
		id, ok := parseID(ctx, "id")
		if !ok {
			return
		}
		if err := p.db.First(&cat, id).Error; err != nil {
			utils.Error(ctx, http.StatusNotFound, 40402, "category not found")
			return
		}
	}
	cat.Name = strings.TrimSpace(utils.SanitizeStrict(req.Name))
	cat.Slug = req.Slug
	cat.SortOrder = req.SortOrder

	var clash int64
	p.db.Model(&models.PostCategory{}).Where("name = ? AND id <> ?", cat.Name, cat.ID).Count(&clash)
	if clash > 0 {
		utils.Error(ctx, http.StatusConflict, 40920, "category already exists")
		return
	}
	if err := p.db.Save(&cat).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to save category")
		return
	}
	invalidatePosts()
	utils.Success(ctx, gin.H{"category": cat})
}

// DeleteCategory removes a category. Posts keep their category text.
func (p *PostController) DeleteCategory(ctx *gin.Context) {
	if !authorize(ctx, p.gate, policy.ActionManageCategories, policy.KindPost, nil) {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	res := p.db.Delete(&models.PostCategory{}, id)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to delete category")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40402, "category not found")
		return
	}
	invalidatePosts()
	utils.Success(ctx, gin.H{"message": "category deleted"})
}

// visiblePost loads a post the actor may view, answering the request otherwise.
func (p *PostController) visiblePost(ctx *gin.Context) (*models.Post, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return nil, false
	}
	post, err := p.posts.Find(ctx.Request.Context(), id, false)
	if err != nil {
		storeError(ctx, err, "post")
		return nil, false
	}
	if !authorize(ctx, p.gate, policy.ActionView, policy.KindPost, post.Subject()) {
		return nil, false
	}
	return post, true
}

// ListComments returns the comments of a visible post, oldest first.
func (p *PostController) ListComments(ctx *gin.Context) {
	post, ok := p.visiblePost(ctx)
	if !ok {
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	var total int64
	var comments []models.Comment
	q := p.db.Model(&models.Comment{}).Where("post_id = ?", post.ID)
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to count comments")
		return
	}
	err := q.Preload("User", func(db *gorm.DB) *gorm.DB { return db.Select("id", "username", "name", "avatar_url") }).
		Order("created_at ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&comments).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to list comments")
		return
	}
	utils.Success(ctx, paged(repository.Page[models.Comment]{Items: comments, Total: total, Page: page, PageSize: pageSize}))
}

// CreateComment adds a comment to a visible post.
func (p *PostController) CreateComment(ctx *gin.Context) {
	if !authorize(ctx, p.gate, policy.ActionCreate, policy.KindComment, nil) {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required,max=5000"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	post, ok := p.visiblePost(ctx)
	if !ok {
		return
	}
	comment := models.Comment{PostID: post.ID, UserID: middleware.ActorFrom(ctx).ID, Content: req.Content}
	comment.Clean()
	if comment.Content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40024, "content cannot be empty")
		return
	}

	if err := p.db.Create(&comment).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to create comment")
		return
	}
	if err := p.db.Preload("User").First(&comment, comment.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to load comment")
		return
	}
	utils.InvalidateByPrefix(fmt.Sprintf("%sdetail:%d", utils.CachePostsPrefix, post.ID))
	utils.Success(ctx, gin.H{"comment": comment})
}

// DeleteComment removes a comment. Authors delete their own; admins moderate any.
func (p *PostController) DeleteComment(ctx *gin.Context) {
	id, ok := parseID(ctx, "commentId")
	if !ok {
		return
	}
	var cmt models.Comment
	if err := p.db.First(&cmt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "comment not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to load comment")
		return
	}
	actor := middleware.ActorFrom(ctx)
	if !p.gate.Can(actor, policy.ActionModerateComments, policy.KindPost, nil) &&
		!authorize(ctx, p.gate, policy.ActionDelete, policy.KindComment, cmt.Subject()) {
		return
	}
	if err := p.db.Delete(&cmt).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to delete comment")
		return
	}
	utils.InvalidateByPrefix(fmt.Sprintf("%sdetail:%d", utils.CachePostsPrefix, cmt.PostID))
	utils.Success(ctx, gin.H{"message": "comment deleted"})
}

// ModerationList lists recent comments across all posts.
func (p *PostController) ModerationList(ctx *gin.Context) {
	if !authorize(ctx, p.gate, policy.ActionModerateComments, policy.KindPost, nil) {
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	q := p.db.Model(&models.Comment{})
	if term := strings.TrimSpace(ctx.Query("search")); term != "" {
		q = q.Where("content LIKE ?", "%"+term+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50072, "failed to count comments")
		return
	}
	var comments []models.Comment
	if err := q.Preload("User").Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&comments).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50073, "failed to list comments")
		return
	}
	utils.Success(ctx, paged(repository.Page[models.Comment]{Items: comments, Total: total, Page: page, PageSize: pageSize}))
}

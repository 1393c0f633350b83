package controllers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/attachments"
	"github.com/cppla/deptcms/config"
	"github.com/cppla/deptcms/middleware"
	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/repository"
	"github.com/cppla/deptcms/storage"
	"github.com/cppla/deptcms/utils"
	"github.com/cppla/deptcms/validation"
)

// AttachmentController uploads, links and serves attachments of any attachable record.
type AttachmentController struct {
	db       *gorm.DB
	gate     *policy.Gate
	disk     storage.Disk
	resolver *attachments.Resolver
	store    *repository.Store[models.Attachment]
}

// NewAttachmentController creates a new AttachmentController instance.
func NewAttachmentController(db *gorm.DB, gate *policy.Gate, disk storage.Disk, resolver *attachments.Resolver) *AttachmentController {
	remove := attachments.RemoveFile(disk)
	return &AttachmentController{
		db:       db,
		gate:     gate,
		disk:     disk,
		resolver: resolver,
		store: repository.New[models.Attachment](db, func(tx *gorm.DB, id uint) error {
			var a models.Attachment
			if err := tx.Unscoped().First(&a, id).Error; err != nil {
				return err
			}
			remove(a)
			return nil
		}),
	}
}

// owner loads the attachable record. ok is false once the request has been answered.
func (a *AttachmentController) owner(ctx *gin.Context, kind models.AttachableKind, id uint) (repository.Attachable, bool) {
	owner, err := repository.LookupAttachable(ctx.Request.Context(), a.db, kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40460, "attachable record not found")
			return owner, false
		}
		storeError(ctx, err, "attachable record")
		return owner, false
	}
	return owner, true
}

// visible reports whether the actor may see the owner. Hidden owners look absent.
func (a *AttachmentController) visible(ctx *gin.Context, att *models.Attachment) bool {
	owner, ok := a.owner(ctx, att.AttachableType, att.AttachableID)
	if !ok {
		return false
	}
	if !a.gate.Can(middleware.ActorFrom(ctx), policy.ActionView, owner.Kind, owner.Subject) {
		utils.Error(ctx, http.StatusNotFound, 40461, "attachment not found")
		return false
	}
	return true
}

// canAttach checks that the actor may add attachments and edit the owner.
func (a *AttachmentController) canAttach(ctx *gin.Context, kind models.AttachableKind, id uint) bool {
	if !authorize(ctx, a.gate, policy.ActionCreate, policy.KindAttachment, nil) {
		return false
	}
	owner, ok := a.owner(ctx, kind, id)
	if !ok {
		return false
	}
	return authorize(ctx, a.gate, policy.ActionUpdate, owner.Kind, owner.Subject)
}

// List returns the attachments of one record in display order.
func (a *AttachmentController) List(ctx *gin.Context) {
	var req struct {
		AttachableType string `form:"attachable_type" binding:"required,attachable"`
		AttachableID   uint   `form:"attachable_id" binding:"required,gt=0"`
	}
	if err := ctx.ShouldBindQuery(&req); err != nil {
		utils.Respond(ctx, http.StatusBadRequest, 40000, "invalid query", gin.H{"errors": validation.FieldErrors(err)})
		return
	}
	kind := models.AttachableKind(req.AttachableType)
	owner, ok := a.owner(ctx, kind, req.AttachableID)
	if !ok {
		return
	}
	if !a.gate.Can(middleware.ActorFrom(ctx), policy.ActionView, owner.Kind, owner.Subject) {
		utils.Error(ctx, http.StatusNotFound, 40460, "attachable record not found")
		return
	}

	q := listQuery(ctx, false)
	q.Order = "sort_order ASC, id ASC"
	page, err := a.store.List(ctx.Request.Context(), q, func(db *gorm.DB) *gorm.DB {
		return db.Where("attachable_type = ? AND attachable_id = ?", kind, req.AttachableID)
	})
	if err != nil {
		storeError(ctx, err, "attachments")
		return
	}
	utils.Success(ctx, paged(page))
}

// Upload stores a file on the public disk and records it.
func (a *AttachmentController) Upload(ctx *gin.Context) {
	var req struct {
		AttachableType string                `form:"attachable_type" binding:"required,attachable"`
		AttachableID   uint                  `form:"attachable_id" binding:"required,gt=0"`
		Title          string                `form:"title" binding:"max=255"`
		Type           models.AttachmentType `form:"type" binding:"omitempty,attachment_type"`
		SortOrder      int                   `form:"sort_order"`
	}
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Respond(ctx, http.StatusBadRequest, 40000, "invalid request payload", gin.H{"errors": validation.FieldErrors(err)})
		return
	}
	kind := models.AttachableKind(req.AttachableType)
	if !a.canAttach(ctx, kind, req.AttachableID) {
		return
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40062, "missing file")
		return
	}
	limit := int64(config.Get().MaxUploadMB) << 20
	if limit > 0 && fh.Size > limit {
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "file too large")
		return
	}
	src, err := fh.Open()
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40063, "unreadable file")
		return
	}
	defer src.Close()

	rel := storage.UploadPath(time.Now(), utils.ShortID(), fh.Filename)
	size, err := a.disk.Put(rel, src, limit)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "file too large")
			return
		}
		utils.Sugar.Errorw("store upload failed", "path", rel, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to store file")
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(rel)); byExt != "" {
			mimeType = byExt
		}
	}
	att := models.Attachment{
		AttachableType: kind,
		AttachableID:   req.AttachableID,
		Type:           req.Type,
		Title:          req.Title,
		FileURL:        rel,
		MimeType:       mimeType,
		Size:           size,
		SortOrder:      req.SortOrder,
		CreatedBy:      middleware.ActorFrom(ctx).ID,
	}
	if att.Type == "" && strings.HasPrefix(mimeType, "image/") {
		att.Type = models.AttachmentImage
	}
	att.Clean()
	if err := a.store.Create(ctx.Request.Context(), &att); err != nil {
		_ = a.disk.Delete(rel)
		storeError(ctx, err, "attachment")
		return
	}
	a.invalidateOwner(kind)
	utils.Success(ctx, gin.H{"attachment": att, "url": a.disk.URL(rel)})
}

// Link records an external link as an attachment.
func (a *AttachmentController) Link(ctx *gin.Context) {
	var req struct {
		AttachableType string `json:"attachable_type" binding:"required,attachable"`
		AttachableID   uint   `json:"attachable_id" binding:"required,gt=0"`
		Title          string `json:"title" binding:"max=255"`
		ExternalURL    string `json:"external_url" binding:"required,weburl,max=1024"`
		SortOrder      int    `json:"sort_order"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	kind := models.AttachableKind(req.AttachableType)
	if !a.canAttach(ctx, kind, req.AttachableID) {
		return
	}
	att := models.Attachment{
		AttachableType: kind,
		AttachableID:   req.AttachableID,
		Type:           models.AttachmentLink,
		Title:          req.Title,
		ExternalURL:    req.ExternalURL,
		SortOrder:      req.SortOrder,
		CreatedBy:      middleware.ActorFrom(ctx).ID,
	}
	att.Clean()
	if err := a.store.Create(ctx.Request.Context(), &att); err != nil {
		storeError(ctx, err, "attachment")
		return
	}
	a.invalidateOwner(kind)
	utils.Success(ctx, gin.H{"attachment": att})
}

func (a *AttachmentController) load(ctx *gin.Context, withTrashed bool) (*models.Attachment, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return nil, false
	}
	att, err := a.store.Find(ctx.Request.Context(), id, withTrashed)
	if err != nil {
		storeError(ctx, err, "attachment")
		return nil, false
	}
	return att, true
}

// Update edits the metadata of an attachment. The stored file is never replaced.
func (a *AttachmentController) Update(ctx *gin.Context) {
	att, ok := a.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, a.gate, policy.ActionUpdate, policy.KindAttachment, att.Subject()) {
		return
	}
	var req struct {
		Title       *string                `json:"title" binding:"omitempty,max=255"`
		Type        *models.AttachmentType `json:"type" binding:"omitempty,attachment_type"`
		ExternalURL *string                `json:"external_url" binding:"omitempty,weburl,max=1024"`
		MimeType    *string                `json:"mime_type" binding:"omitempty,max=128"`
		SortOrder   *int                   `json:"sort_order"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	if req.Title != nil {
		att.Title = *req.Title
	}
	if req.Type != nil {
		att.Type = *req.Type
	}
	if req.ExternalURL != nil {
		att.ExternalURL = strings.TrimSpace(*req.ExternalURL)
	}
	if req.MimeType != nil {
		att.MimeType = strings.TrimSpace(*req.MimeType)
	}
	if req.SortOrder != nil {
		att.SortOrder = *req.SortOrder
	}
	att.Clean()
	if err := a.store.Save(ctx.Request.Context(), att); err != nil {
		storeError(ctx, err, "attachment")
		return
	}
	a.invalidateOwner(att.AttachableType)
	utils.Success(ctx, gin.H{"attachment": att})
}

// Delete moves an attachment to the trash.
func (a *AttachmentController) Delete(ctx *gin.Context) {
	a.lifecycle(ctx, policy.ActionDelete, false, a.store.Trash, "attachment moved to trash")
}

// Restore brings a trashed attachment back.
func (a *AttachmentController) Restore(ctx *gin.Context) {
	a.lifecycle(ctx, policy.ActionRestore, true, a.store.Restore, "attachment restored")
}

// ForceDelete permanently removes a trashed attachment and its stored file.
func (a *AttachmentController) ForceDelete(ctx *gin.Context) {
	a.lifecycle(ctx, policy.ActionForceDelete, true, a.store.Purge, "attachment permanently deleted")
}

func (a *AttachmentController) lifecycle(ctx *gin.Context, action policy.Action, withTrashed bool, op func(context.Context, uint) error, message string) {
	att, ok := a.load(ctx, withTrashed)
	if !ok {
		return
	}
	if !authorize(ctx, a.gate, action, policy.KindAttachment, att.Subject()) {
		return
	}
	if err := op(ctx.Request.Context(), att.ID); err != nil {
		storeError(ctx, err, "attachment")
		return
	}
	a.invalidateOwner(att.AttachableType)
	utils.Success(ctx, gin.H{"message": message, "id": att.ID})
}

// Show answers GET /attachments/:id: the external link when set, else the download.
func (a *AttachmentController) Show(ctx *gin.Context) {
	a.resolve(ctx, a.resolver.Show)
}

// Download answers GET /attachments/:id/download.
func (a *AttachmentController) Download(ctx *gin.Context) {
	a.resolve(ctx, a.resolver.Download)
}

func (a *AttachmentController) resolve(ctx *gin.Context, fn func(*models.Attachment) attachments.Result) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	att, err := a.store.Find(ctx.Request.Context(), id, false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40461, "attachment not found")
			return
		}
		storeError(ctx, err, "attachment")
		return
	}
	if !a.visible(ctx, att) {
		return
	}
	attachments.Write(ctx, a.disk, fn(att))
}

func (a *AttachmentController) invalidateOwner(kind models.AttachableKind) {
	switch kind {
	case models.AttachablePost:
		invalidatePosts()
	case models.AttachableLab:
		invalidateLabs()
	default:
		utils.InvalidateByPrefix(utils.CacheResourcesPrefix + string(kind) + ":")
	}
}

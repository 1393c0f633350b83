package controllers

import (
	"context"
	"fmt"
	"net/http"
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

// ResourceOptions configures a ResourceController.
type ResourceOptions[T any] struct {
	// Name is the singular name used in messages and cache keys, e.g. "staff".
	Name          string
	SearchColumns []string
	// Order defaults to "id DESC".
	Order string
	// Filters maps query parameters to columns matched by equality.
	Filters map[string]string
	// Attachable makes force deletes remove the record's attachments.
	Attachable models.AttachableKind
	PurgeHooks []repository.PurgeHook
	// Validate rejects a cleaned record before it is written.
	Validate func(*T) error
	// AfterWrite runs after every successful change.
	AfterWrite func()
}

// ResourceController serves the catalog style records (staff, teachers,
// programs, courses, publications, projects) through one generic set of handlers.
type ResourceController[T any, PT interface {
	*T
	models.Managed
}] struct {
	db    *gorm.DB
	gate  *policy.Gate
	store *repository.Store[T]
	opts  ResourceOptions[T]
}

// NewResourceController creates a ResourceController for T.
func NewResourceController[T any, PT interface {
	*T
	models.Managed
}](db *gorm.DB, gate *policy.Gate, onAttachment func(models.Attachment), opts ResourceOptions[T]) *ResourceController[T, PT] {
	hooks := append([]repository.PurgeHook{}, opts.PurgeHooks...)
	if opts.Attachable != "" {
		hooks = append(hooks, repository.PurgeAttachments(opts.Attachable, onAttachment))
	}
	return &ResourceController[T, PT]{
		db:    db,
		gate:  gate,
		store: repository.New[T](db, hooks...),
		opts:  opts,
	}
}

func (r *ResourceController[T, PT]) kind() policy.Kind {
	return PT(new(T)).ResourceKind()
}

func (r *ResourceController[T, PT]) cachePrefix() string {
	return utils.CacheResourcesPrefix + r.opts.Name + ":"
}

func (r *ResourceController[T, PT]) changed() {
	utils.InvalidateByPrefix(r.cachePrefix())
	if r.opts.AfterWrite != nil {
		r.opts.AfterWrite()
	}
}

func (r *ResourceController[T, PT]) scopes(ctx *gin.Context) ([]repository.Scope, string) {
	var scopes []repository.Scope
	var key strings.Builder
	for param, column := range r.opts.Filters {
		v := strings.TrimSpace(ctx.Query(param))
		if v == "" {
			continue
		}
		col, val := column, v
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where(col+" = ?", val) })
		fmt.Fprintf(&key, ":%s=%s", param, v)
	}
	return scopes, key.String()
}

func (r *ResourceController[T, PT]) query(ctx *gin.Context, manage bool) repository.ListQuery {
	q := listQuery(ctx, manage)
	q.SearchColumns = r.opts.SearchColumns
	q.Order = r.opts.Order
	return q
}

// List is the public listing. Unsearched pages are cached.
func (r *ResourceController[T, PT]) List(ctx *gin.Context) {
	if !authorize(ctx, r.gate, policy.ActionViewAny, r.kind(), nil) {
		return
	}
	q := r.query(ctx, false)
	scopes, filterKey := r.scopes(ctx)
	cacheKey := ""
	if q.Search == "" && len(filterKey) < 200 {
		cacheKey = fmt.Sprintf("%slist%s:page=%d:size=%d", r.cachePrefix(), filterKey, q.Page, q.PageSize)
		if utils.ServeCached(ctx, cacheKey) {
			return
		}
	}
	page, err := r.store.List(ctx.Request.Context(), q, scopes...)
	if err != nil {
		storeError(ctx, err, r.opts.Name)
		return
	}
	if cacheKey != "" {
		utils.SuccessCached(ctx, cacheKey, paged(page), time.Hour)
		return
	}
	utils.Success(ctx, paged(page))
}

// Show returns one record.
func (r *ResourceController[T, PT]) Show(ctx *gin.Context) {
	v, ok := r.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, r.gate, policy.ActionView, r.kind(), PT(v).PolicySubject()) {
		return
	}
	utils.Success(ctx, gin.H{r.opts.Name: v})
}

// ManageList lists records for the panel, trashed ones on request.
func (r *ResourceController[T, PT]) ManageList(ctx *gin.Context) {
	if !authorize(ctx, r.gate, policy.ActionViewAny, r.kind(), nil) {
		return
	}
	scopes, _ := r.scopes(ctx)
	page, err := r.store.List(ctx.Request.Context(), r.query(ctx, true), scopes...)
	if err != nil {
		storeError(ctx, err, r.opts.Name)
		return
	}
	utils.Success(ctx, paged(page))
}

func (r *ResourceController[T, PT]) load(ctx *gin.Context, withTrashed bool) (*T, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return nil, false
	}
	v, err := r.store.Find(ctx.Request.Context(), id, withTrashed)
	if err != nil {
		storeError(ctx, err, r.opts.Name)
		return nil, false
	}
	return v, true
}

func (r *ResourceController[T, PT]) bind(ctx *gin.Context, creatorID uint) (*T, bool) {
	v := new(T)
	if !bindJSON(ctx, v) {
		return nil, false
	}
	PT(v).PrepareCreate(creatorID)
	PT(v).Clean()
	if r.opts.Validate != nil {
		if err := r.opts.Validate(v); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40010, err.Error())
			return nil, false
		}
	}
	return v, true
}

// Create stores a new record owned by the actor.
func (r *ResourceController[T, PT]) Create(ctx *gin.Context) {
	if !authorize(ctx, r.gate, policy.ActionCreate, r.kind(), nil) {
		return
	}
	v, ok := r.bind(ctx, middleware.ActorFrom(ctx).ID)
	if !ok {
		return
	}
	if err := r.store.Create(ctx.Request.Context(), v); err != nil {
		storeError(ctx, err, r.opts.Name)
		return
	}
	r.changed()
	utils.Success(ctx, gin.H{r.opts.Name: v})
}

// Update replaces the editable fields. Identity and creator are kept.
func (r *ResourceController[T, PT]) Update(ctx *gin.Context) {
	current, ok := r.load(ctx, false)
	if !ok {
		return
	}
	if !authorize(ctx, r.gate, policy.ActionUpdate, r.kind(), PT(current).PolicySubject()) {
		return
	}
	v, ok := r.bind(ctx, 0)
	if !ok {
		return
	}
	id, _ := parseID(ctx, "id")
	rctx := ctx.Request.Context()
	if err := r.store.Replace(rctx, id, v); err != nil {
		storeError(ctx, err, r.opts.Name)
		return
	}
	updated, err := r.store.Find(rctx, id, false)
	if err != nil {
		storeError(ctx, err, r.opts.Name)
		return
	}
	r.changed()
	utils.Success(ctx, gin.H{r.opts.Name: updated})
}

// Delete moves a record to the trash.
func (r *ResourceController[T, PT]) Delete(ctx *gin.Context) {
	r.lifecycle(ctx, policy.ActionDelete, false, r.store.Trash, "moved to trash")
}

// Restore brings a trashed record back.
func (r *ResourceController[T, PT]) Restore(ctx *gin.Context) {
	r.lifecycle(ctx, policy.ActionRestore, true, r.store.Restore, "restored")
}

// ForceDelete permanently removes a trashed record.
func (r *ResourceController[T, PT]) ForceDelete(ctx *gin.Context) {
	r.lifecycle(ctx, policy.ActionForceDelete, true, r.store.Purge, "permanently deleted")
}

func (r *ResourceController[T, PT]) lifecycle(ctx *gin.Context, action policy.Action, withTrashed bool, op func(context.Context, uint) error, message string) {
	v, ok := r.load(ctx, withTrashed)
	if !ok {
		return
	}
	if !authorize(ctx, r.gate, action, r.kind(), PT(v).PolicySubject()) {
		return
	}
	id, _ := parseID(ctx, "id")
	if err := op(ctx.Request.Context(), id); err != nil {
		storeError(ctx, err, r.opts.Name)
		return
	}
	r.changed()
	utils.Success(ctx, gin.H{"message": r.opts.Name + " " + message, "id": id})
}

package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/deptcms/middleware"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/repository"
	"github.com/cppla/deptcms/utils"
	"github.com/cppla/deptcms/validation"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

// listQuery reads page, page_size, search and, when allowed, trashed.
func listQuery(ctx *gin.Context, allowTrashed bool) repository.ListQuery {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	q := repository.ListQuery{
		Page:     page,
		PageSize: pageSize,
		Search:   strings.TrimSpace(ctx.Query("search")),
	}
	if allowTrashed {
		q.Trashed = repository.ParseTrashed(ctx.Query("trashed"))
	}
	return q
}

func paged[T any](p repository.Page[T]) gin.H {
	return gin.H{
		"items": p.Items,
		"pagination": gin.H{
			"page":        p.Page,
			"page_size":   p.PageSize,
			"total":       p.Total,
			"total_pages": int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize)),
		},
	}
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

// parseID reads a numeric path parameter and answers 400 when it is not one.
func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// bindJSON binds the request body and answers 400 with per field errors.
func bindJSON(ctx *gin.Context, v interface{}) bool {
	if err := ctx.ShouldBindJSON(v); err != nil {
		utils.Respond(ctx, http.StatusBadRequest, 40000, "invalid request payload", gin.H{"errors": validation.FieldErrors(err)})
		return false
	}
	return true
}

// authorize asks the gate and answers the denial itself. It returns false
// when the handler must stop.
func authorize(ctx *gin.Context, gate *policy.Gate, action policy.Action, kind policy.Kind, subject any) bool {
	err := gate.Authorize(middleware.ActorFrom(ctx), action, kind, subject)
	if err == nil {
		return true
	}
	if d, ok := policy.AsDenied(err); ok {
		middleware.ForbidDenied(ctx, d)
		return false
	}
	utils.Sugar.Errorw("authorization failed", "kind", kind, "action", action, "error", err)
	utils.Error(ctx, http.StatusInternalServerError, 50002, "authorization is not configured")
	return false
}

// storeError maps repository errors onto the response envelope.
func storeError(ctx *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40400, what+" not found")
	case errors.Is(err, repository.ErrAlreadyTrashed):
		utils.Error(ctx, http.StatusConflict, 40900, what+" is already in trash")
	case errors.Is(err, repository.ErrNotTrashed):
		utils.Error(ctx, http.StatusConflict, 40901, what+" is not in trash")
	default:
		utils.Sugar.Errorw("store operation failed", "resource", what, "path", ctx.FullPath(), "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, "failed to process "+what)
	}
}

package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/utils"
)

// StatsController provides the dashboard numbers of the management panel.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

func (s *StatsController) count(model interface{}, scopes ...func(*gorm.DB) *gorm.DB) int64 {
	var n int64
	if err := s.db.Model(model).Scopes(scopes...).Count(&n).Error; err != nil {
		// Fallback to 0 instead of failing the whole endpoint
		utils.Sugar.Warnw("dashboard count failed", "error", err)
		return 0
	}
	return n
}

func (s *StatsController) pageViewsSince(since time.Time) int64 {
	n, err := models.TotalViews(s.db, since)
	if err != nil {
		utils.Sugar.Warnw("dashboard page views failed", "error", err)
	}
	return n
}

// GetStats returns aggregate counts for the dashboard.
func (s *StatsController) GetStats(ctx *gin.Context) {
	today := models.Day(time.Now())
	byRole := func(role policy.Role) func(*gorm.DB) *gorm.DB {
		return func(db *gorm.DB) *gorm.DB { return db.Where("role = ?", role) }
	}
	newMessages := func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", models.ContactNew) }

	utils.Success(ctx, gin.H{
		"post_count":           s.count(&models.Post{}),
		"published_post_count": s.count(&models.Post{}, publishedScope),
		"lab_count":            s.count(&models.Lab{}),
		"teacher_count":        s.count(&models.Teacher{}),
		"publication_count":    s.count(&models.Publication{}),
		"user_count":           s.count(&models.User{}),
		"teacher_user_count":   s.count(&models.User{}, byRole(policy.RoleTeacher)),
		"comment_count":        s.count(&models.Comment{}),
		"new_contact_count":    s.count(&models.ContactMessage{}, newMessages),
		"today_pv":             s.pageViewsSince(today),
		"week_pv":              s.pageViewsSince(today.AddDate(0, 0, -6)),
	})
}

// GetTopPages returns the most viewed paths of the last days (default 7).
func (s *StatsController) GetTopPages(ctx *gin.Context) {
	days, err := strconv.Atoi(ctx.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > 365 {
		utils.Error(ctx, http.StatusBadRequest, 40090, "days must be between 1 and 365")
		return
	}
	out, err := models.TopPaths(s.db, time.Now().AddDate(0, 0, -(days-1)), 20)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50090, "failed to load page views")
		return
	}
	utils.Success(ctx, gin.H{"days": days, "items": out})
}

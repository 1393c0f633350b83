package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/utils"
)

// pvSkipPrefixes are paths that are not public content pages.
var pvSkipPrefixes = []string{"/api/", "/static/", "/storage/", "/attachments/", "/manage", "/login", "/health"}

// PageViewRecorder counts successful GET page views per day and path.
func PageViewRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet {
			return
		}
		if status := c.Writer.Status(); status < 200 || status >= 400 {
			return
		}
		path := c.Request.URL.Path
		for _, p := range pvSkipPrefixes {
			if strings.HasPrefix(path, p) {
				return
			}
		}
		if len(path) > 255 {
			path = path[:255]
		}
		RecordPageView(db, path, time.Now())
	}
}

// RecordPageView bumps the counter of path for the local day of at.
func RecordPageView(db *gorm.DB, path string, at time.Time) {
	day := models.Day(at)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "path"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": time.Now()}),
	}).Create(&models.PageView{Date: day, Path: path, Count: 1}).Error
	if err != nil {
		utils.Sugar.Debugw("record page view failed", "path", path, "error", err)
	}
}

package controllers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
)

// ExportPublications downloads the publication list as a spreadsheet,
// optionally narrowed by year, teacher_id or lab_id.
func ExportPublications(db *gorm.DB, gate *policy.Gate) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !authorize(ctx, gate, policy.ActionViewAny, policy.KindPublication, nil) {
			return
		}
		q := db.WithContext(ctx.Request.Context()).Model(&models.Publication{})
		for _, param := range []string{"year", "teacher_id", "lab_id"} {
			if v, err := strconv.Atoi(ctx.Query(param)); err == nil && v > 0 {
				q = q.Where(param+" = ?", v)
			}
		}
		var pubs []models.Publication
		if err := q.Order("year DESC, id DESC").Find(&pubs).Error; err != nil {
			storeError(ctx, err, "publications")
			return
		}
		rows := make([][]interface{}, 0, len(pubs))
		for _, p := range pubs {
			rows = append(rows, []interface{}{p.Year, p.Title, p.Authors, p.Venue, p.Kind, p.DOI, p.URL})
		}
		header := []string{"Year", "Title", "Authors", "Venue", "Type", "DOI", "URL"}
		writeXLSX(ctx, "publications-"+time.Now().Format("20060102")+".xlsx", "Publications", header, rows)
	}
}

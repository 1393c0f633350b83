package models

import (
	"time"

	"gorm.io/gorm"
)

// PageView aggregates public page hits per local day and path.
type PageView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      time.Time `gorm:"index:idx_pv_date_path,unique;type:date;not null" json:"date"`
	Path      string    `gorm:"index;index:idx_pv_date_path,unique;size:255;not null" json:"path"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DayCount is the number of views of one day.
type DayCount struct {
	Date  time.Time `json:"date"`
	Count int64     `json:"count"`
}

// PathCount is the number of views of one path over a period.
type PathCount struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

// Day truncates t to the start of its local day, the bucket page views are kept in.
func Day(t time.Time) time.Time {
	l := t.In(time.Local)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.Local)
}

// DailyViews returns the per day views of path over the last days, oldest first.
func DailyViews(db *gorm.DB, path string, days int) ([]DayCount, error) {
	out := []DayCount{}
	since := Day(time.Now()).AddDate(0, 0, -(days - 1))
	err := db.Model(&PageView{}).Select("date, count").
		Where("path = ? AND date >= ?", path, since).
		Order("date ASC").Scan(&out).Error
	return out, err
}

// TotalViews sums the views of every path since the given day.
func TotalViews(db *gorm.DB, since time.Time) (int64, error) {
	var n int64
	err := db.Model(&PageView{}).Where("date >= ?", Day(since)).
		Select("COALESCE(SUM(count),0)").Scan(&n).Error
	return n, err
}

// TopPaths returns the most viewed paths since the given day.
func TopPaths(db *gorm.DB, since time.Time, limit int) ([]PathCount, error) {
	out := []PathCount{}
	err := db.Model(&PageView{}).
		Select("path, SUM(count) AS views").
		Where("date >= ?", Day(since)).
		Group("path").Order("views DESC").Limit(limit).
		Scan(&out).Error
	return out, err
}

// Package models holds the GORM models of the department site.
package models

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &Teacher{}, &Lab{}, &Post{}, &PostCategory{}, &Comment{},
		&Attachment{}, &ContactMessage{}, &Staff{}, &Program{}, &Course{},
		&Publication{}, &Project{}, &PageView{},
	}
}

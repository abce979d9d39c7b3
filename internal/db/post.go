package db

import (
	"time"

	"gorm.io/gorm"
)

// Post 定义了文章模型，Content 为编辑器输出的 HTML
type Post struct {
	gorm.Model
	SiteID      uint   `gorm:"uniqueIndex:idx_posts_site_unique;uniqueIndex:idx_posts_site_slug;not null"`
	UniqueID    string `gorm:"uniqueIndex:idx_posts_site_unique;not null"`
	Slug        string `gorm:"uniqueIndex:idx_posts_site_slug;not null"`
	Title       string `gorm:"not null"`
	Content     string `gorm:"type:text"`
	Description string `gorm:"type:text"`
	Published   bool   `gorm:"default:false"`
	PublishedAt *time.Time
}

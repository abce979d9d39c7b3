package db

import "gorm.io/gorm"

// Project 用于在站点首页展示的作品条目
// SortOrder 值越小越靠前
type Project struct {
	gorm.Model
	SiteID      uint   `gorm:"index;not null"`
	Title       string `gorm:"size:120;not null"`
	Description string `gorm:"type:text"`
	URL         string `gorm:"size:255"`
	SortOrder   int    `gorm:"default:0"`
}

// SocialLink 保存前台展示的社交链接
type SocialLink struct {
	gorm.Model
	SiteID    uint   `gorm:"index;not null"`
	Platform  string `gorm:"size:50;not null"`
	URL       string `gorm:"size:255;not null"`
	SortOrder int    `gorm:"default:0"`
}

// TableName 返回自定义表名，避免冲突
func (SocialLink) TableName() string {
	return "social_links"
}

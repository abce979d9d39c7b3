package db

import "gorm.io/gorm"

// PageRevision 记录页面每一次提交后的版本快照。
type PageRevision struct {
	gorm.Model
	PageID      uint  `gorm:"uniqueIndex:idx_page_revisions_page_version;not null"`
	Version     int64 `gorm:"uniqueIndex:idx_page_revisions_page_version;not null"`
	Title       string
	Content     string `gorm:"type:text"`
	ContentHash string
	EditedBy    *uint
}

// TableName 指定自定义表名。
func (PageRevision) TableName() string {
	return "page_revisions"
}

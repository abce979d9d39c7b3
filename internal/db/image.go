package db

import "gorm.io/gorm"

// Image 定义上传图片的元数据，字节内容保存在 StorageKey 指向的存储中
type Image struct {
	gorm.Model
	UUID       string `gorm:"uniqueIndex;not null"`
	OwnerID    uint   `gorm:"index;not null"`
	Filename   string
	MimeType   string `gorm:"not null"`
	Size       int64
	Width      int
	Height     int
	StorageKey string `gorm:"not null"`
}

package db

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User 定义了用户模型
type User struct {
	gorm.Model
	Username string `gorm:"uniqueIndex;not null"`
	Password string `gorm:"not null;default:''"`
	Sites    []Site `gorm:"foreignKey:OwnerID"`
}

// EnsureUser 存在性检查：若提供的用户名与密码均非空且不存在对应账号，则创建一个 bcrypt 哈希的用户。
// 已存在的账号保持不变，返回该账号。
func EnsureUser(gdb *gorm.DB, username, password string) (*User, error) {
	trimmedUser := strings.TrimSpace(username)
	trimmedPassword := strings.TrimSpace(password)
	if trimmedUser == "" || trimmedPassword == "" {
		return nil, nil
	}

	if gdb == nil {
		return nil, errors.New("database not initialized")
	}

	var existing User
	if err := gdb.Where("username = ?", trimmedUser).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(trimmedPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}

		user := User{Username: trimmedUser, Password: string(hashed)}
		if err := gdb.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}

	return &existing, nil
}

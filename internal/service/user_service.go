package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pagesmith/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUsernameInvalid    = errors.New("username must be 3-30 chars of a-z, 0-9, - or _")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrUserNotFound       = errors.New("user not found")
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_-]{3,30}$`)

// UserService 负责账号注册与登录校验
type UserService struct {
	db *gorm.DB
}

func NewUserService(gdb *gorm.DB) *UserService {
	return &UserService{db: gdb}
}

// Register creates an account and its default site in one transaction.
func (s *UserService) Register(username, password string) (*db.User, *db.Site, error) {
	name := strings.ToLower(strings.TrimSpace(username))
	if !usernamePattern.MatchString(name) {
		return nil, nil, ErrUsernameInvalid
	}
	if len(password) < 8 {
		return nil, nil, ErrPasswordTooShort
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	var (
		user db.User
		site *db.Site
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.User{}).Where("username = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if count > 0 {
			return ErrUsernameTaken
		}

		user = db.User{Username: name, Password: string(hashed)}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		site, err = CreateDefaultSite(tx, &user)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &user, site, nil
}

// Authenticate 校验用户名与密码，未设置密码的账号无法登录
func (s *UserService) Authenticate(username, password string) (*db.User, error) {
	var user db.User
	if err := s.db.Where("username = ?", strings.ToLower(strings.TrimSpace(username))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user.Password == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Get 根据主键获取用户
func (s *UserService) Get(id uint) (*db.User, error) {
	var user db.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

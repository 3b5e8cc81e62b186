package service

import (
	"context"
	"errors"
	"strings"

	"chatapp/internal/auth"
	"chatapp/internal/models"

	"gorm.io/gorm"
)

// UserService 封装账户相关的业务逻辑。
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

type SignupInput struct {
	Name      string `json:"name" validate:"max=128"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,max=72"`
	PhoneNo   string `json:"phoneNo" validate:"max=32"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,url,max=512"`
}

// Signup 创建用户；邮箱或手机号已被占用时返回 ErrEmailTaken。
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PhoneNo = strings.TrimSpace(in.PhoneNo)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email)
	if in.PhoneNo != "" {
		q = q.Or("phone_no = ?", in.PhoneNo)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		PhoneNo:      in.PhoneNo,
		AvatarURL:    in.AvatarURL,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &user, nil
}

// Login 校验邮箱与密码。未知邮箱返回 ErrUserNotFound，密码错误返回 ErrInvalidCredentials。
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, newError(ErrValidation, "Email and password are required")
	}
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List 返回除调用者外的用户，search 对姓名与邮箱做不区分大小写的子串匹配。
// 没有任何结果时返回 ErrUserNotFound。
func (s *UserService) List(ctx context.Context, callerID uint, search string) ([]models.User, error) {
	q := s.db.WithContext(ctx).Where("id <> ?", callerID)
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
		q = q.Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	var users []models.User
	if err := q.Order("updated_at asc, id asc").Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, newError(ErrNotFound, "No users found")
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

type UpdateInput struct {
	Name      string `json:"name" validate:"max=128"`
	Password  string `json:"password" validate:"max=72"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,url,max=512"`
}

// Update 只允许修改自己的账户，空字段保持不变。
func (s *UserService) Update(ctx context.Context, callerID, targetID uint, in UpdateInput) (*models.User, error) {
	if callerID != targetID {
		return nil, ErrNotOwner
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	user, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if in.Name != "" {
		user.Name = in.Name
	}
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if in.AvatarURL != "" {
		user.AvatarURL = in.AvatarURL
	}
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Delete 删除自己的账户。关联的会话与消息保留，不做级联。
func (s *UserService) Delete(ctx context.Context, callerID, targetID uint) error {
	if callerID != targetID {
		return ErrNotOwner
	}
	res := s.db.WithContext(ctx).Delete(&models.User{}, targetID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

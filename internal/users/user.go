package users

import (
	"strings"

	"gorm.io/gorm"
)

// User is a registered Memeflix account.
type User struct {
	ID               uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Username         string `gorm:"column:username;size:32;not null;uniqueIndex" json:"username"`
	Email            string `gorm:"column:email;size:320;not null;uniqueIndex" json:"email"`
	PasswordHash     string `gorm:"column:password_hash;size:72;not null" json:"-"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// RegistrationRequest carries the raw registration form.
type RegistrationRequest struct {
	Username string
	Email    string
	Password string
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

// RequireUser returns ErrUserNotFound when no account has the id. db may be a transaction.
func RequireUser(db *gorm.DB, id uint) error {
	var count int64
	if err := db.Model(&User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

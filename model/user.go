package model

import "gorm.io/gorm"

// User is a storefront account. Credentials are an argon2id hash plus a
// per-user salt; plaintext passwords are never stored.
type User struct {
	gorm.Model
	Name         string `json:"name" gorm:"type:varchar(191)"`
	Email        string `json:"email" gorm:"type:varchar(191);uniqueIndex"`
	Password     string `json:"-" gorm:"type:varchar(512)"`
	PasswordSalt string `json:"-" gorm:"type:varchar(64)"`
	IsStaff      bool   `json:"is_staff"`
}

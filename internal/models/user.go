package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	StatusUnverified = "unverified"
	StatusVerified   = "verified"
)

type User struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	FullName           string     `gorm:"size:100;not null" json:"full_name"`
	Email              string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash       string     `gorm:"not null" json:"-"`
	Role               string     `gorm:"size:20;default:'user';not null" json:"role"`
	Status             string     `gorm:"size:20;default:'unverified';not null" json:"status"`
	ProfilePic         string     `json:"-"`                      // storage key
	SessionFingerprint string     `gorm:"size:64;index" json:"-"` // sha256 of the live session token
	SessionExpiry      *time.Time `json:"-"`
	VerifyToken        string     `gorm:"size:64;index" json:"-"`
	VerifyTokenExpiry  *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

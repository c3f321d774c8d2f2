package models

import (
	"time"
)

const (
	MediaImage = "image"
	MediaVideo = "video"
	MediaAudio = "audio"
)

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BookID    uint      `gorm:"not null;index" json:"book_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	ParentID  *uint     `gorm:"index" json:"parent_id"` // nil for top-level comments
	Content   string    `gorm:"type:text;not null" json:"content"`
	MediaKey  string    `json:"-"`
	MediaKind string    `gorm:"size:10" json:"media_kind,omitempty"`
	Likes     int       `gorm:"default:0;not null" json:"likes"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

package models

import (
	"time"
)

type Book struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Author       string    `gorm:"size:255;not null" json:"author"`
	Synopsis     string    `gorm:"type:text" json:"synopsis"`
	PDFKey       string    `json:"-"`
	ExternalLink string    `json:"external_link"`
	UploaderID   uint      `gorm:"not null;index" json:"uploader_id"`
	Upvotes      int       `gorm:"default:0;not null" json:"upvotes"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Filled in by queries, not stored.
	CommentCount int `gorm:"-" json:"comment_count"`
}

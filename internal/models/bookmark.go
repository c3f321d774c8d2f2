package models

import (
	"time"
)

// Bookmark is a book a user saved for later.
type Bookmark struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index;uniqueIndex:idx_bookmark_user_book" json:"user_id"`
	BookID    uint      `gorm:"not null;index;uniqueIndex:idx_bookmark_user_book" json:"book_id"`
	CreatedAt time.Time `json:"created_at"`
}

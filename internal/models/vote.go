package models

import (
	"time"
)

// BookVote is one upvote. The unique pair keeps a user to a single vote per book.
type BookVote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_book_vote_user_book" json:"user_id"`
	BookID    uint      `gorm:"not null;index;uniqueIndex:idx_book_vote_user_book" json:"book_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CommentLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_comment_like_user_comment" json:"user_id"`
	CommentID uint      `gorm:"not null;index;uniqueIndex:idx_comment_like_user_comment" json:"comment_id"`
	CreatedAt time.Time `json:"created_at"`
}

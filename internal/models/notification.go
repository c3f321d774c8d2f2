package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeBookUpload   NotificationType = "book_upload"
	NotificationTypeBookComment  NotificationType = "book_comment"
	NotificationTypeCommentReply NotificationType = "comment_reply"
	NotificationTypeSystem       NotificationType = "system"
)

type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	UserID    uint             `gorm:"not null;index" json:"user_id"` // Receiver
	SenderID  *uint            `gorm:"index" json:"sender_id"`
	Message   string           `gorm:"type:text;not null" json:"message"` // rendered once at write time
	Type      NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	RelatedID *uint            `json:"related_id"`
	IsRead    bool             `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

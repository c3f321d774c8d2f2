package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"bookcircle/internal/apperr"
	"bookcircle/internal/config"
	"bookcircle/internal/storage"
	"bookcircle/internal/utils"

	"gorm.io/gorm"
)

// Deps are the shared collaborators every service is built from.
type Deps struct {
	DB     *gorm.DB
	Cache  *utils.Cache
	Store  storage.ObjectStore
	Mailer Mailer
	Config config.Config
}

// Services groups the application services wired together.
type Services struct {
	Users         *UserService
	Books         *BookService
	Comments      *CommentService
	Engagement    *EngagementService
	Notifications *NotificationService
}

func New(d Deps) *Services {
	if d.Cache == nil {
		d.Cache = utils.NewCache(500)
	}
	notifications := NewNotificationService(d.DB, d.Store, d.Config.BroadcastWorkers, d.Config.BroadcastQueueSize)
	engagement := NewEngagementService(d.DB, d.Cache)
	comments := NewCommentService(d.DB, d.Store, d.Cache, notifications, engagement)
	return &Services{
		Users:         NewUserService(d.DB, d.Store, d.Cache, d.Mailer, comments, d.Config),
		Books:         NewBookService(d.DB, d.Store, d.Cache, notifications, d.Config.BookUploadPolicy),
		Comments:      comments,
		Engagement:    engagement,
		Notifications: notifications,
	}
}

// Page is one page of a listing. Page is 1-indexed.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	TotalPages int   `json:"totalPages"`
	Total      int64 `json:"total"`
}

// Upload is a file received from a client. ContentType is replaced by the
// detected type before anything is stored.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader

	ext string
}

// accept detects the upload's real type and rejects it unless allowed
// accepts that type.
func (u *Upload) accept(allowed func(contentType string) bool, msg string) error {
	m, body, err := storage.Sniff(u.Body)
	if err != nil {
		return apperr.Validation("could not read upload")
	}
	u.Body = body
	u.ContentType = storage.BaseType(m.String())
	u.ext = m.Extension()
	if !allowed(u.ContentType) {
		return apperr.Validation(msg)
	}
	return nil
}

// MajorType is the part of the content type before the slash.
func (u *Upload) MajorType() string {
	ct := strings.ToLower(strings.TrimSpace(u.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	major, _, _ := strings.Cut(ct, "/")
	return major
}

func bookCacheKey(id uint) string {
	return fmt.Sprintf("book:detail:%d", id)
}

// serviceErr passes classified errors through and hides everything else
// behind an internal error.
func serviceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(fmt.Errorf("%s: %w", op, err))
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}

func putUpload(ctx context.Context, store storage.ObjectStore, prefix string, up *Upload) (string, error) {
	key := storage.NewKey(prefix, up.ext)
	if err := store.Put(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return "", apperr.Internal(fmt.Errorf("store %s upload: %w", prefix, err))
	}
	return key, nil
}

func mediaURL(ctx context.Context, store storage.ObjectStore, key string) string {
	if key == "" || store == nil {
		return ""
	}
	url, err := store.PresignGet(ctx, key, storage.URLExpiry)
	if err != nil {
		slog.Warn("resolve media url failed", "key", key, "error", err)
		return ""
	}
	return url
}

func deleteObjects(ctx context.Context, store storage.ObjectStore, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			slog.Warn("delete stored object failed", "key", key, "error", err)
		}
	}
}

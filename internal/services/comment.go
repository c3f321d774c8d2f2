package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bookcircle/internal/apperr"
	"bookcircle/internal/models"
	"bookcircle/internal/storage"
	"bookcircle/internal/utils"

	"gorm.io/gorm"
)

// Comment orderings accepted by ListComments.
const (
	OrderOldest    = "oldest"
	OrderNewest    = "newest"
	OrderMostLikes = "most-likes"
)

const (
	defaultCommentPageSize = 10
	maxCommentPageSize     = 100
	activityLimit          = 10
)

var commentOrders = map[string]string{
	OrderOldest:    "c.created_at ASC, c.id ASC",
	OrderNewest:    "c.created_at DESC, c.id DESC",
	OrderMostLikes: "c.likes DESC, c.created_at DESC, c.id DESC",
}

type PostCommentInput struct {
	BookID   uint
	AuthorID uint
	Content  string
	ParentID *uint
	Media    *Upload
}

// CommentView is a comment joined with its author's display fields.
type CommentView struct {
	ID          uint      `json:"id"`
	BookID      uint      `json:"book_id"`
	UserID      uint      `json:"user_id"`
	ParentID    *uint     `json:"parent_id"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"content_html"`
	MediaURL    string    `json:"media_url,omitempty"`
	MediaKind   string    `json:"media_kind,omitempty"`
	Likes       int       `json:"likes"`
	CreatedAt   time.Time `json:"created_at"`
	AuthorName  string    `json:"author_name"`
	AuthorPic   string    `json:"author_pic"`
}

type commentRow struct {
	models.Comment
	AuthorName string
	AuthorPic  string
}

type CommentService struct {
	db           *gorm.DB
	store        storage.ObjectStore
	cache        *utils.Cache
	notification *NotificationService
	engagement   *EngagementService
}

func NewCommentService(db *gorm.DB, store storage.ObjectStore, cache *utils.Cache, notification *NotificationService, engagement *EngagementService) *CommentService {
	return &CommentService{
		db:           db,
		store:        store,
		cache:        cache,
		notification: notification,
		engagement:   engagement,
	}
}

// PostComment adds a comment or a reply and notifies exactly one person:
// the parent's author for replies, the uploader for top-level comments.
func (s *CommentService) PostComment(ctx context.Context, in PostCommentInput) (*CommentView, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" && in.Media == nil {
		return nil, apperr.Validation("comment content or media is required")
	}
	if in.Media != nil {
		if err := in.Media.accept(storage.IsMedia, "media must be an image, video or audio file"); err != nil {
			return nil, err
		}
	}
	db := s.db.WithContext(ctx)

	var book models.Book
	if err := db.Select("id", "title", "uploader_id").First(&book, in.BookID).Error; err != nil {
		return nil, serviceErr("post comment", notFoundOr(err, "book not found"))
	}
	var parent models.Comment
	if in.ParentID != nil {
		err := db.Select("id", "user_id").Where("id = ? AND book_id = ?", *in.ParentID, in.BookID).First(&parent).Error
		if err != nil {
			return nil, serviceErr("post comment", notFoundOr(err, "parent comment not found"))
		}
	}

	comment := models.Comment{
		BookID:   in.BookID,
		UserID:   in.AuthorID,
		ParentID: in.ParentID,
		Content:  in.Content,
	}
	if in.Media != nil {
		key, err := putUpload(ctx, s.store, "comments", in.Media)
		if err != nil {
			return nil, err
		}
		comment.MediaKey = key
		comment.MediaKind = in.Media.MajorType()
	}
	if err := db.Create(&comment).Error; err != nil {
		deleteObjects(ctx, s.store, comment.MediaKey)
		return nil, serviceErr("post comment", err)
	}
	s.cache.Delete(bookCacheKey(in.BookID))

	if in.ParentID != nil {
		parentID := parent.ID
		s.notification.Notify(ctx, parent.UserID, in.AuthorID,
			fmt.Sprintf(TemplateCommentReply, book.Title), models.NotificationTypeCommentReply, &parentID)
	} else {
		bookID := book.ID
		s.notification.Notify(ctx, book.UploaderID, in.AuthorID,
			fmt.Sprintf(TemplateBookComment, book.Title), models.NotificationTypeBookComment, &bookID)
	}

	return s.GetComment(ctx, comment.ID)
}

// GetComment loads one comment in its public shape.
func (s *CommentService) GetComment(ctx context.Context, commentID uint) (*CommentView, error) {
	var rows []commentRow
	if err := s.joined(ctx).Where("c.id = ?", commentID).Limit(1).Scan(&rows).Error; err != nil {
		return nil, serviceErr("get comment", err)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("comment not found")
	}
	view := s.view(ctx, rows[0])
	return &view, nil
}

// ListComments returns a flat page of a book's comments. Nesting is exposed
// through parent_id only.
func (s *CommentService) ListComments(ctx context.Context, bookID uint, page, pageSize int, order string) (*Page[CommentView], error) {
	if order == "" {
		order = OrderOldest
	}
	orderBy, ok := commentOrders[order]
	if !ok {
		return nil, apperr.Validation("order must be one of oldest, newest, most-likes")
	}
	page, pageSize = utils.Pagination(page, pageSize, defaultCommentPageSize, maxCommentPageSize)

	db := s.db.WithContext(ctx)
	var book models.Book
	if err := db.Select("id").First(&book, bookID).Error; err != nil {
		return nil, serviceErr("list comments", notFoundOr(err, "book not found"))
	}
	var total int64
	if err := db.Model(&models.Comment{}).Where("book_id = ?", bookID).Count(&total).Error; err != nil {
		return nil, serviceErr("count comments", err)
	}
	var rows []commentRow
	err := s.joined(ctx).Where("c.book_id = ?", bookID).
		Order(orderBy).
		Offset((page - 1) * pageSize).Limit(pageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, serviceErr("list comments", err)
	}
	return &Page[CommentView]{
		Items:      s.views(ctx, rows),
		Page:       page,
		TotalPages: utils.TotalPages(total, pageSize),
		Total:      total,
	}, nil
}

// LikeComment records a like and returns the comment with its new count.
func (s *CommentService) LikeComment(ctx context.Context, userID, commentID uint) (*CommentView, error) {
	if _, err := s.engagement.CastCommentLike(ctx, userID, commentID); err != nil {
		return nil, err
	}
	return s.GetComment(ctx, commentID)
}

// ListAllComments is the moderation feed across every book, newest first.
func (s *CommentService) ListAllComments(ctx context.Context, page, pageSize int) (*Page[CommentView], error) {
	page, pageSize = utils.Pagination(page, pageSize, defaultCommentPageSize, maxCommentPageSize)
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Comment{}).Count(&total).Error; err != nil {
		return nil, serviceErr("count comments", err)
	}
	var rows []commentRow
	err := s.joined(ctx).Order(commentOrders[OrderNewest]).
		Offset((page - 1) * pageSize).Limit(pageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, serviceErr("list all comments", err)
	}
	return &Page[CommentView]{
		Items:      s.views(ctx, rows),
		Page:       page,
		TotalPages: utils.TotalPages(total, pageSize),
		Total:      total,
	}, nil
}

// DeleteComment removes a comment with every reply below it.
func (s *CommentService) DeleteComment(ctx context.Context, commentID uint) error {
	var root models.Comment
	var mediaKeys []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id", "book_id").First(&root, commentID).Error; err != nil {
			return notFoundOr(err, "comment not found")
		}
		ids, err := collectSubtree(tx, []uint{root.ID})
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Comment{}).Where("id IN ? AND media_key <> ''", ids).Pluck("media_key", &mediaKeys).Error; err != nil {
			return err
		}
		if err := deleteNotificationsTx(tx, nil, ids); err != nil {
			return err
		}
		if err := tx.Where("comment_id IN ?", ids).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.Comment{}).Error
	})
	if err != nil {
		return serviceErr("delete comment", err)
	}
	s.cache.Delete(bookCacheKey(root.BookID))
	deleteObjects(ctx, s.store, mediaKeys...)
	slog.Info("comment deleted", "comment_id", commentID, "book_id", root.BookID)
	return nil
}

// RecentByUser returns a user's latest comments.
func (s *CommentService) RecentByUser(ctx context.Context, userID uint) ([]CommentView, error) {
	var rows []commentRow
	err := s.joined(ctx).Where("c.user_id = ?", userID).
		Order(commentOrders[OrderNewest]).Limit(activityLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, serviceErr("recent comments", err)
	}
	return s.views(ctx, rows), nil
}

func (s *CommentService) joined(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("comments c").
		Select("c.*, u.full_name AS author_name, u.profile_pic AS author_pic").
		Joins("LEFT JOIN users u ON u.id = c.user_id")
}

func (s *CommentService) views(ctx context.Context, rows []commentRow) []CommentView {
	out := make([]CommentView, len(rows))
	for i, r := range rows {
		out[i] = s.view(ctx, r)
	}
	return out
}

func (s *CommentService) view(ctx context.Context, r commentRow) CommentView {
	return CommentView{
		ID:          r.ID,
		BookID:      r.BookID,
		UserID:      r.UserID,
		ParentID:    r.ParentID,
		Content:     r.Content,
		ContentHTML: utils.RenderMarkdown(r.Content),
		MediaURL:    mediaURL(ctx, s.store, r.MediaKey),
		MediaKind:   r.MediaKind,
		Likes:       r.Likes,
		CreatedAt:   r.CreatedAt,
		AuthorName:  r.AuthorName,
		AuthorPic:   mediaURL(ctx, s.store, r.AuthorPic),
	}
}

// collectSubtree expands seed comment ids with all of their descendants.
func collectSubtree(tx *gorm.DB, seed []uint) ([]uint, error) {
	seen := make(map[uint]bool, len(seed))
	all := make([]uint, 0, len(seed))
	frontier := make([]uint, 0, len(seed))
	for _, id := range seed {
		if !seen[id] {
			seen[id] = true
			all = append(all, id)
			frontier = append(frontier, id)
		}
	}
	for len(frontier) > 0 {
		var children []uint
		if err := tx.Model(&models.Comment{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, id := range children {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
				frontier = append(frontier, id)
			}
		}
	}
	return all, nil
}


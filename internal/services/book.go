package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"bookcircle/internal/apperr"
	"bookcircle/internal/auth"
	"bookcircle/internal/models"
	"bookcircle/internal/storage"
	"bookcircle/internal/utils"

	"gorm.io/gorm"
)

const (
	defaultBookPageSize = 10
	maxBookPageSize     = 50
	bookCacheTTL        = time.Minute
)

type CreateBookInput struct {
	Title        string
	Author       string
	Synopsis     string
	ExternalLink string
	PDF          *Upload
}

// BookView is a book with everything a detail page needs.
type BookView struct {
	models.Book
	SynopsisHTML string `json:"synopsis_html"`
	PDFURL       string `json:"pdf_url,omitempty"`
	UploaderName string `json:"uploader_name"`
}

type BookService struct {
	db           *gorm.DB
	store        storage.ObjectStore
	cache        *utils.Cache
	notification *NotificationService
	uploadPolicy string
}

func NewBookService(db *gorm.DB, store storage.ObjectStore, cache *utils.Cache, notification *NotificationService, uploadPolicy string) *BookService {
	return &BookService{
		db:           db,
		store:        store,
		cache:        cache,
		notification: notification,
		uploadPolicy: uploadPolicy,
	}
}

// CreateBook stores a new book and tells every other user about it.
func (s *BookService) CreateBook(ctx context.Context, id auth.Identity, in CreateBookInput) (*BookView, error) {
	if err := auth.CanUploadBooks(s.uploadPolicy, id); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ExternalLink = strings.TrimSpace(in.ExternalLink)
	if in.Title == "" || in.Author == "" {
		return nil, apperr.Validation("title and author are required")
	}
	if in.ExternalLink != "" && !isHTTPURL(in.ExternalLink) {
		return nil, apperr.Validation("external link must be an http(s) URL")
	}
	if in.PDF != nil {
		if err := in.PDF.accept(storage.IsPDF, "book file must be a PDF"); err != nil {
			return nil, err
		}
	}

	book := models.Book{
		Title:        in.Title,
		Author:       in.Author,
		Synopsis:     strings.TrimSpace(in.Synopsis),
		ExternalLink: in.ExternalLink,
		UploaderID:   id.UserID,
	}
	if in.PDF != nil {
		key, err := putUpload(ctx, s.store, "books", in.PDF)
		if err != nil {
			return nil, err
		}
		book.PDFKey = key
	}
	if err := s.db.WithContext(ctx).Create(&book).Error; err != nil {
		deleteObjects(ctx, s.store, book.PDFKey)
		return nil, serviceErr("create book", err)
	}
	slog.Info("book created", "book_id", book.ID, "uploader_id", id.UserID)

	s.notification.BroadcastBookUpload(id.UserID, book.ID, book.Title)
	return s.view(ctx, book, id.FullName), nil
}

// ListBooks pages through books newest first with comment counts filled in.
func (s *BookService) ListBooks(ctx context.Context, page, limit int) (*Page[models.Book], error) {
	page, limit = utils.Pagination(page, limit, defaultBookPageSize, maxBookPageSize)
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.Book{}).Count(&total).Error; err != nil {
		return nil, serviceErr("count books", err)
	}
	books := make([]models.Book, 0, limit)
	err := db.Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, serviceErr("list books", err)
	}
	if err := fillCommentCounts(db, books); err != nil {
		return nil, serviceErr("list books", err)
	}
	return &Page[models.Book]{
		Items:      books,
		Page:       page,
		TotalPages: utils.TotalPages(total, limit),
		Total:      total,
	}, nil
}

// GetBook returns one book. Details are cached briefly and invalidated by
// votes, comments and deletes.
func (s *BookService) GetBook(ctx context.Context, bookID uint) (*BookView, error) {
	key := bookCacheKey(bookID)
	if cached, ok := s.cache.Get(key).(BookView); ok {
		return &cached, nil
	}

	db := s.db.WithContext(ctx)
	var book models.Book
	if err := db.First(&book, bookID).Error; err != nil {
		return nil, serviceErr("get book", notFoundOr(err, "book not found"))
	}
	books := []models.Book{book}
	if err := fillCommentCounts(db, books); err != nil {
		return nil, serviceErr("get book", err)
	}
	var uploader models.User
	if err := db.Select("id", "full_name").First(&uploader, book.UploaderID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, serviceErr("get book uploader", err)
	}

	view := s.view(ctx, books[0], uploader.FullName)
	s.cache.Set(key, *view, bookCacheTTL)
	return view, nil
}

// DeleteBook removes a book along with its votes, bookmarks, comments, likes
// and the notifications pointing at them.
func (s *BookService) DeleteBook(ctx context.Context, bookID uint) error {
	var book models.Book
	var mediaKeys []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&book, bookID).Error; err != nil {
			return notFoundOr(err, "book not found")
		}
		var comments []models.Comment
		if err := tx.Select("id", "media_key").Where("book_id = ?", bookID).Find(&comments).Error; err != nil {
			return err
		}
		commentIDs := make([]uint, len(comments))
		for i, c := range comments {
			commentIDs[i] = c.ID
			mediaKeys = append(mediaKeys, c.MediaKey)
		}
		if err := deleteNotificationsTx(tx, []uint{bookID}, commentIDs); err != nil {
			return err
		}
		if err := tx.Where("comment_id IN ?", commentIDs).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("book_id = ?", bookID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("book_id = ?", bookID).Delete(&models.BookVote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("book_id = ?", bookID).Delete(&models.Bookmark{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Book{}, bookID).Error
	})
	if err != nil {
		return serviceErr("delete book", err)
	}
	s.cache.Delete(bookCacheKey(bookID))
	deleteObjects(ctx, s.store, append(mediaKeys, book.PDFKey)...)
	slog.Info("book deleted", "book_id", bookID)
	return nil
}

func (s *BookService) view(ctx context.Context, book models.Book, uploaderName string) *BookView {
	return &BookView{
		Book:         book,
		SynopsisHTML: utils.RenderMarkdown(book.Synopsis),
		PDFURL:       mediaURL(ctx, s.store, book.PDFKey),
		UploaderName: uploaderName,
	}
}

// fillCommentCounts loads comment counts for books in one query.
func fillCommentCounts(db *gorm.DB, books []models.Book) error {
	if len(books) == 0 {
		return nil
	}
	bookIDs := make([]uint, len(books))
	for i, b := range books {
		bookIDs[i] = b.ID
	}

	type countResult struct {
		BookID uint
		Count  int
	}
	var results []countResult
	err := db.Model(&models.Comment{}).
		Select("book_id, COUNT(*) as count").
		Where("book_id IN ?", bookIDs).
		Group("book_id").
		Scan(&results).Error
	if err != nil {
		return fmt.Errorf("count comments: %w", err)
	}

	countMap := make(map[uint]int, len(results))
	for _, r := range results {
		countMap[r.BookID] = r.Count
	}
	for i := range books {
		books[i].CommentCount = countMap[books[i].ID]
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

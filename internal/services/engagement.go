package services

import (
	"context"
	"fmt"

	"bookcircle/internal/apperr"
	"bookcircle/internal/models"
	"bookcircle/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CountConflict reports a repeated upvote or like together with the current
// count, so callers can still show the real state.
type CountConflict struct {
	Message string
	Count   int
}

func (e *CountConflict) Error() string {
	return fmt.Sprintf("%s (count %d)", e.Message, e.Count)
}

func (e *CountConflict) Unwrap() error { return apperr.Conflict(e.Message) }

// EngagementService owns the vote, like and bookmark ledgers. Counters on
// books and comments are always recomputed from the ledger inside the same
// transaction as the insert.
type EngagementService struct {
	db    *gorm.DB
	cache *utils.Cache
}

func NewEngagementService(db *gorm.DB, cache *utils.Cache) *EngagementService {
	return &EngagementService{db: db, cache: cache}
}

// CastUpvote records one upvote per user per book and returns the new count.
func (s *EngagementService) CastUpvote(ctx context.Context, userID, bookID uint) (int, error) {
	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row lock orders concurrent voters so each recount sees every
		// earlier vote committed.
		var book models.Book
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&book, bookID).Error; err != nil {
			return notFoundOr(err, "book not found")
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.BookVote{UserID: userID, BookID: bookID})
		if res.Error != nil {
			return res.Error
		}
		n, err := countBookVotes(tx, bookID)
		if err != nil {
			return err
		}
		count = n
		if res.RowsAffected == 0 {
			return &CountConflict{Message: "already upvoted", Count: n}
		}
		return tx.Model(&models.Book{}).Where("id = ?", bookID).UpdateColumn("upvotes", n).Error
	})
	if err != nil {
		return count, serviceErr("cast upvote", err)
	}
	s.cache.Delete(bookCacheKey(bookID))
	return count, nil
}

// CastCommentLike records one like per user per comment and returns the new count.
func (s *EngagementService) CastCommentLike(ctx context.Context, userID, commentID uint) (int, error) {
	var count int
	var bookID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "book_id").First(&comment, commentID).Error; err != nil {
			return notFoundOr(err, "comment not found")
		}
		bookID = comment.BookID
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.CommentLike{UserID: userID, CommentID: commentID})
		if res.Error != nil {
			return res.Error
		}
		n, err := countCommentLikes(tx, commentID)
		if err != nil {
			return err
		}
		count = n
		if res.RowsAffected == 0 {
			return &CountConflict{Message: "already liked", Count: n}
		}
		return tx.Model(&models.Comment{}).Where("id = ?", commentID).UpdateColumn("likes", n).Error
	})
	if err != nil {
		return count, serviceErr("cast comment like", err)
	}
	s.cache.Delete(bookCacheKey(bookID))
	return count, nil
}

// ToggleBookmark adds the bookmark when missing and removes it otherwise.
func (s *EngagementService) ToggleBookmark(ctx context.Context, userID, bookID uint) (bool, int64, error) {
	var bookmarked bool
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book models.Book
		if err := tx.Select("id").First(&book, bookID).Error; err != nil {
			return notFoundOr(err, "book not found")
		}
		res := tx.Where("user_id = ? AND book_id = ?", userID, bookID).Delete(&models.Bookmark{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.Bookmark{UserID: userID, BookID: bookID}).Error
			if err != nil {
				return err
			}
			bookmarked = true
		}
		return tx.Model(&models.Bookmark{}).Where("book_id = ?", bookID).Count(&count).Error
	})
	if err != nil {
		return false, 0, serviceErr("toggle bookmark", err)
	}
	return bookmarked, count, nil
}

// ListBookmarks returns the user's bookmarked books, most recently saved first.
func (s *EngagementService) ListBookmarks(ctx context.Context, userID uint) ([]models.Book, error) {
	var books []models.Book
	err := s.db.WithContext(ctx).
		Joins("JOIN bookmarks ON bookmarks.book_id = books.id").
		Where("bookmarks.user_id = ?", userID).
		Order("bookmarks.created_at DESC, bookmarks.id DESC").
		Find(&books).Error
	if err != nil {
		return nil, serviceErr("list bookmarks", err)
	}
	if err := fillCommentCounts(s.db.WithContext(ctx), books); err != nil {
		return nil, serviceErr("list bookmarks", err)
	}
	return books, nil
}

// HasUpvoted reports whether userID already upvoted bookID.
func (s *EngagementService) HasUpvoted(ctx context.Context, userID, bookID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.BookVote{}).
		Where("user_id = ? AND book_id = ?", userID, bookID).Count(&n).Error
	return n > 0, serviceErr("check upvote", err)
}

func countBookVotes(tx *gorm.DB, bookID uint) (int, error) {
	var n int64
	err := tx.Model(&models.BookVote{}).Where("book_id = ?", bookID).Count(&n).Error
	return int(n), err
}

func countCommentLikes(tx *gorm.DB, commentID uint) (int, error) {
	var n int64
	err := tx.Model(&models.CommentLike{}).Where("comment_id = ?", commentID).Distinct("user_id").Count(&n).Error
	return int(n), err
}

// recountBooks and recountComments refresh cached counters after ledger rows
// were removed in bulk.
func recountBooks(tx *gorm.DB, bookIDs []uint) error {
	for _, id := range bookIDs {
		n, err := countBookVotes(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Book{}).Where("id = ?", id).UpdateColumn("upvotes", n).Error; err != nil {
			return err
		}
	}
	return nil
}

func recountComments(tx *gorm.DB, commentIDs []uint) error {
	for _, id := range commentIDs {
		n, err := countCommentLikes(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Comment{}).Where("id = ?", id).UpdateColumn("likes", n).Error; err != nil {
			return err
		}
	}
	return nil
}

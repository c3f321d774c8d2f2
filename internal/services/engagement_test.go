package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bookcircle/internal/apperr"
	"bookcircle/internal/models"

	"gorm.io/gorm"
)

func TestCastUpvoteOncePerUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	voter := env.createUser(t, "Voter", models.RoleUser)
	book := env.createBook(t, uploader, "B123")

	n, err := env.svc.Engagement.CastUpvote(ctx, voter.ID, book.ID)
	if err != nil || n != 1 {
		t.Fatalf("first upvote: n=%d err=%v", n, err)
	}

	n, err = env.svc.Engagement.CastUpvote(ctx, voter.ID, book.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on second upvote, got %v", err)
	}
	var cc *CountConflict
	if !errors.As(err, &cc) || cc.Count != 1 || n != 1 {
		t.Fatalf("expected conflict to carry count 1, got n=%d err=%v", n, err)
	}

	var stored models.Book
	env.db.First(&stored, book.ID)
	if stored.Upvotes != 1 {
		t.Fatalf("expected stored upvotes 1, got %d", stored.Upvotes)
	}
	if env.count(t, &models.BookVote{}, "book_id = ?", book.ID) != 1 {
		t.Fatalf("expected exactly one ledger row")
	}
	voted, err := env.svc.Engagement.HasUpvoted(ctx, voter.ID, book.ID)
	if err != nil || !voted {
		t.Fatalf("expected HasUpvoted true, got %v %v", voted, err)
	}
}

func TestCastUpvoteConcurrentVoters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	book := env.createBook(t, uploader, "Popular")
	voters := make([]models.User, 8)
	for i := range voters {
		voters[i] = env.createUser(t, readerName(i), models.RoleUser)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(voters)*2)
	for _, v := range voters {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(userID uint) {
				defer wg.Done()
				if _, err := env.svc.Engagement.CastUpvote(ctx, userID, book.ID); err != nil && !apperr.Is(err, apperr.KindConflict) {
					errs <- err
				}
			}(v.ID)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected upvote error: %v", err)
	}

	var stored models.Book
	env.db.First(&stored, book.ID)
	if stored.Upvotes != len(voters) {
		t.Fatalf("expected %d upvotes, got %d", len(voters), stored.Upvotes)
	}
}

func TestCastUpvoteUnknownBook(t *testing.T) {
	env := newTestEnv(t)
	voter := env.createUser(t, "Voter", models.RoleUser)
	if _, err := env.svc.Engagement.CastUpvote(context.Background(), voter.ID, 404); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if env.count(t, &models.BookVote{}, "1 = 1") != 0 {
		t.Fatalf("no vote should be recorded for a missing book")
	}
}

func TestCastCommentLikeRecomputesFromLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	liker := env.createUser(t, "Liker", models.RoleUser)
	book := env.createBook(t, uploader, "B1")
	c := env.comment(t, book, uploader, "first", nil)

	// Drift the counter; the next like must repair it.
	env.db.Model(&models.Comment{}).Where("id = ?", c.ID).UpdateColumn("likes", 42)

	n, err := env.svc.Engagement.CastCommentLike(ctx, liker.ID, c.ID)
	if err != nil || n != 1 {
		t.Fatalf("like: n=%d err=%v", n, err)
	}
	_, err = env.svc.Engagement.CastCommentLike(ctx, liker.ID, c.ID)
	var cc *CountConflict
	if !errors.As(err, &cc) || cc.Count != 1 {
		t.Fatalf("expected conflict with count 1, got %v", err)
	}

	view, err := env.svc.Comments.GetComment(ctx, c.ID)
	if err != nil {
		t.Fatalf("get comment: %v", err)
	}
	if view.Likes != 1 {
		t.Fatalf("expected likes 1, got %d", view.Likes)
	}
	if _, err := env.svc.Engagement.CastCommentLike(ctx, liker.ID, 999); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown comment, got %v", err)
	}
}

func TestToggleBookmark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	reader := env.createUser(t, "Reader", models.RoleUser)
	first := env.createBook(t, uploader, "First")
	second := env.createBook(t, uploader, "Second")

	on, count, err := env.svc.Engagement.ToggleBookmark(ctx, reader.ID, first.ID)
	if err != nil || !on || count != 1 {
		t.Fatalf("bookmark on: on=%v count=%d err=%v", on, count, err)
	}
	if _, _, err := env.svc.Engagement.ToggleBookmark(ctx, reader.ID, second.ID); err != nil {
		t.Fatalf("bookmark second: %v", err)
	}

	books, err := env.svc.Engagement.ListBookmarks(ctx, reader.ID)
	if err != nil {
		t.Fatalf("list bookmarks: %v", err)
	}
	if len(books) != 2 || books[0].ID != second.ID {
		t.Fatalf("expected most recently saved first, got %+v", books)
	}

	on, count, err = env.svc.Engagement.ToggleBookmark(ctx, reader.ID, first.ID)
	if err != nil || on || count != 0 {
		t.Fatalf("bookmark off: on=%v count=%d err=%v", on, count, err)
	}
	if _, _, err := env.svc.Engagement.ToggleBookmark(ctx, reader.ID, 404); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// SQLite serializes writers on its own, so the Postgres row lock is checked
// on the statement instead of through a race.
func TestCastLocksParentRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	voter := env.createUser(t, "Voter", models.RoleUser)
	book := env.createBook(t, uploader, "Locked")
	c := env.comment(t, book, uploader, "first", nil)

	var mu sync.Mutex
	var locked []string
	err := env.db.Callback().Query().Before("gorm:query").Register("test:record_locks", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; ok {
			mu.Lock()
			locked = append(locked, tx.Statement.Table)
			mu.Unlock()
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if _, err := env.svc.Engagement.CastUpvote(ctx, voter.ID, book.ID); err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if _, err := env.svc.Engagement.CastCommentLike(ctx, voter.ID, c.ID); err != nil {
		t.Fatalf("like: %v", err)
	}
	if len(locked) != 2 || locked[0] != "books" || locked[1] != "comments" {
		t.Fatalf("expected locked reads of books then comments, got %v", locked)
	}
}

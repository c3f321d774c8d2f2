package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"bookcircle/internal/apperr"
	"bookcircle/internal/models"
)

func TestPostCommentNotifiesUploader(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	reader := env.createUser(t, "Reader", models.RoleUser)
	book := env.createBook(t, uploader, "B123")

	c := env.comment(t, book, reader, "Loved **this**", nil)
	if c.AuthorName != "Reader" || c.ParentID != nil {
		t.Fatalf("unexpected view %+v", c)
	}
	if !strings.Contains(c.ContentHTML, "<strong>this</strong>") {
		t.Fatalf("expected rendered markdown, got %q", c.ContentHTML)
	}

	got := env.notificationsFor(t, uploader.ID)
	if len(got) != 1 {
		t.Fatalf("expected one notification for the uploader, got %d", len(got))
	}
	n := got[0]
	if n.Type != models.NotificationTypeBookComment || n.RelatedID == nil || *n.RelatedID != book.ID {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.Message != `Reader commented on your book "B123"` {
		t.Fatalf("unexpected message %q", n.Message)
	}

	// Commenting on your own book notifies nobody.
	env.comment(t, book, uploader, "thanks", nil)
	if len(env.notificationsFor(t, uploader.ID)) != 1 {
		t.Fatalf("self comment should not notify")
	}
}

func TestPostReplyNotifiesParentAuthorOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	first := env.createUser(t, "First", models.RoleUser)
	second := env.createUser(t, "Second", models.RoleUser)
	book := env.createBook(t, uploader, "B123")

	parent := env.comment(t, book, first, "top", nil)
	before := len(env.notificationsFor(t, uploader.ID))

	reply, err := env.svc.Comments.PostComment(ctx, PostCommentInput{
		BookID: book.ID, AuthorID: second.ID, Content: "reply", ParentID: uintPtr(parent.ID),
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ParentID == nil || *reply.ParentID != parent.ID {
		t.Fatalf("expected parent id %d, got %v", parent.ID, reply.ParentID)
	}

	got := env.notificationsFor(t, first.ID)
	if len(got) != 1 {
		t.Fatalf("expected one reply notification, got %d", len(got))
	}
	if got[0].Type != models.NotificationTypeCommentReply || *got[0].RelatedID != parent.ID {
		t.Fatalf("unexpected reply notification %+v", got[0])
	}
	if len(env.notificationsFor(t, uploader.ID)) != before {
		t.Fatalf("a reply must not notify the uploader")
	}
}

func TestPostCommentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	book := env.createBook(t, uploader, "One")
	other := env.createBook(t, uploader, "Two")
	foreign := env.comment(t, other, uploader, "elsewhere", nil)

	tests := []struct {
		name string
		in   PostCommentInput
		kind apperr.Kind
	}{
		{"empty", PostCommentInput{BookID: book.ID, AuthorID: uploader.ID, Content: "   "}, apperr.KindValidation},
		{"missing book", PostCommentInput{BookID: 404, AuthorID: uploader.ID, Content: "hi"}, apperr.KindNotFound},
		{"missing parent", PostCommentInput{BookID: book.ID, AuthorID: uploader.ID, Content: "hi", ParentID: uintPtr(404)}, apperr.KindNotFound},
		{"parent on another book", PostCommentInput{BookID: book.ID, AuthorID: uploader.ID, Content: "hi", ParentID: uintPtr(foreign.ID)}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Comments.PostComment(ctx, tt.in)
			if !apperr.Is(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestPostCommentWithMedia(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	book := env.createBook(t, uploader, "Pictures")

	c, err := env.svc.Comments.PostComment(context.Background(), PostCommentInput{
		BookID:   book.ID,
		AuthorID: uploader.ID,
		Media: &Upload{
			Filename:    "cover.png",
			ContentType: "image/png",
			Size:        8,
			Body:        strings.NewReader(pngHeader),
		},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if c.MediaKind != models.MediaImage {
		t.Fatalf("expected image media kind, got %q", c.MediaKind)
	}
	if !strings.HasPrefix(c.MediaURL, "/media/comments/") || !strings.HasSuffix(c.MediaURL, ".png") {
		t.Fatalf("unexpected media url %q", c.MediaURL)
	}
}

func TestPostCommentRejectsNonMedia(t *testing.T) {
	env := newTestEnv(t)
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	book := env.createBook(t, uploader, "Pictures")

	payloads := map[string]string{
		"html": "<html><body><script>alert(1)</script></body></html>",
		"svg":  `<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`,
		"text": "just some words",
	}
	for name, body := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.Comments.PostComment(context.Background(), PostCommentInput{
				BookID:   book.ID,
				AuthorID: uploader.ID,
				Media:    &Upload{Filename: "x.png", ContentType: "image/png", Size: int64(len(body)), Body: strings.NewReader(body)},
			})
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if n := env.count(t, &models.Comment{}, "book_id = ?", book.ID); n != 0 {
		t.Fatalf("expected no comments stored, got %d", n)
	}
}

func TestListCommentsOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	book := env.createBook(t, uploader, "Ordered")
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	a := env.comment(t, book, uploader, "a", nil)
	b := env.comment(t, book, uploader, "b", nil)
	c := env.comment(t, book, uploader, "c", nil)
	env.at(t, a.ID, base)
	env.at(t, b.ID, base.Add(time.Minute))
	env.at(t, c.ID, base.Add(2*time.Minute))

	likers := []models.User{env.createUser(t, "L1", models.RoleUser), env.createUser(t, "L2", models.RoleUser)}
	for _, l := range likers {
		if _, err := env.svc.Engagement.CastCommentLike(ctx, l.ID, a.ID); err != nil {
			t.Fatalf("like a: %v", err)
		}
	}
	if _, err := env.svc.Engagement.CastCommentLike(ctx, likers[0].ID, b.ID); err != nil {
		t.Fatalf("like b: %v", err)
	}
	if _, err := env.svc.Engagement.CastCommentLike(ctx, likers[0].ID, c.ID); err != nil {
		t.Fatalf("like c: %v", err)
	}

	tests := []struct {
		order string
		want  []uint
	}{
		{OrderOldest, []uint{a.ID, b.ID, c.ID}},
		{"", []uint{a.ID, b.ID, c.ID}},
		{OrderNewest, []uint{c.ID, b.ID, a.ID}},
		// b and c tie on likes; the newer one wins.
		{OrderMostLikes, []uint{a.ID, c.ID, b.ID}},
	}
	for _, tt := range tests {
		t.Run("order="+tt.order, func(t *testing.T) {
			page, err := env.svc.Comments.ListComments(ctx, book.ID, 1, 10, tt.order)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(page.Items) != len(tt.want) {
				t.Fatalf("expected %d items, got %d", len(tt.want), len(page.Items))
			}
			for i, id := range tt.want {
				if page.Items[i].ID != id {
					t.Fatalf("position %d: expected %d, got %d", i, id, page.Items[i].ID)
				}
			}
		})
	}

	if _, err := env.svc.Comments.ListComments(ctx, book.ID, 1, 10, "random"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown order, got %v", err)
	}
	if _, err := env.svc.Comments.ListComments(ctx, 404, 1, 10, ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown book, got %v", err)
	}
}

func TestListCommentsPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	book := env.createBook(t, uploader, "Long thread")
	for i := 0; i < 25; i++ {
		env.comment(t, book, uploader, readerName(i), nil)
	}

	page, err := env.svc.Comments.ListComments(ctx, book.ID, 3, 10, OrderOldest)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 25 || page.TotalPages != 3 || page.Page != 3 {
		t.Fatalf("unexpected page meta %+v", page)
	}
	if len(page.Items) != 5 || page.Items[0].Content != readerName(20) {
		t.Fatalf("unexpected last page %+v", page.Items)
	}

	empty, err := env.svc.Comments.ListComments(ctx, book.ID, 9, 10, OrderOldest)
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if len(empty.Items) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(empty.Items))
	}
}

func TestDeleteCommentRemovesSubtree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	replier := env.createUser(t, "Replier", models.RoleUser)
	book := env.createBook(t, uploader, "Threads")

	root := env.comment(t, book, uploader, "root", nil)
	child := env.comment(t, book, replier, "child", uintPtr(root.ID))
	grandchild := env.comment(t, book, uploader, "grandchild", uintPtr(child.ID))
	sibling := env.comment(t, book, replier, "sibling", nil)
	if _, err := env.svc.Engagement.CastCommentLike(ctx, replier.ID, grandchild.ID); err != nil {
		t.Fatalf("like: %v", err)
	}

	if err := env.svc.Comments.DeleteComment(ctx, root.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := env.count(t, &models.Comment{}, "book_id = ?", book.ID); n != 1 {
		t.Fatalf("expected only the sibling to survive, got %d comments", n)
	}
	if _, err := env.svc.Comments.GetComment(ctx, sibling.ID); err != nil {
		t.Fatalf("sibling should survive: %v", err)
	}
	if n := env.count(t, &models.CommentLike{}, "comment_id = ?", grandchild.ID); n != 0 {
		t.Fatalf("likes on removed comments should be gone, got %d", n)
	}
	if n := env.count(t, &models.Notification{}, "type = ?", models.NotificationTypeCommentReply); n != 0 {
		t.Fatalf("reply notifications pointing at removed comments should be gone, got %d", n)
	}
	if err := env.svc.Comments.DeleteComment(ctx, root.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestRecentByUserAndListAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uploader := env.createUser(t, "Uploader", models.RoleUser)
	reader := env.createUser(t, "Reader", models.RoleUser)
	one := env.createBook(t, uploader, "One")
	two := env.createBook(t, uploader, "Two")
	env.comment(t, one, reader, "on one", nil)
	env.comment(t, two, reader, "on two", nil)
	env.comment(t, two, uploader, "by uploader", nil)

	recent, err := env.svc.Comments.RecentByUser(ctx, reader.ID)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "on two" {
		t.Fatalf("unexpected recent comments %+v", recent)
	}

	all, err := env.svc.Comments.ListAllComments(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all.Total != 3 || all.Items[0].Content != "by uploader" {
		t.Fatalf("unexpected moderation feed %+v", all)
	}
}

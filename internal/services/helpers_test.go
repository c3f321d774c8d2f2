package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"bookcircle/internal/auth"
	"bookcircle/internal/config"
	"bookcircle/internal/db/dbtest"
	"bookcircle/internal/models"
	"bookcircle/internal/storage"
	"bookcircle/internal/utils"

	"gorm.io/gorm"
)

// pngHeader is the PNG signature, enough for content detection.
const pngHeader = "\x89PNG\r\n\x1a\n"

type fakeMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *fakeMailer) SendVerificationEmail(to, name, link string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[to] = link
}

func (m *fakeMailer) tokenFor(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[email]
	if !ok {
		t.Fatalf("no verification email sent to %s", email)
	}
	_, token, _ := strings.Cut(link, "token=")
	return token
}

type testEnv struct {
	db       *gorm.DB
	svc      *Services
	mailer   *fakeMailer
	cfg      config.Config
	mediaDir string
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	for _, m := range mutate {
		m(&cfg)
	}

	conn := dbtest.Open(t)
	mediaDir := t.TempDir()
	store, err := storage.NewLocalStore(mediaDir, "/media")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	mailer := &fakeMailer{}
	svc := New(Deps{
		DB:     conn,
		Cache:  utils.NewCache(100),
		Store:  store,
		Mailer: mailer,
		Config: cfg,
	})
	t.Cleanup(svc.Notifications.Close)
	return &testEnv{db: conn, svc: svc, mailer: mailer, cfg: cfg, mediaDir: mediaDir}
}

func (e *testEnv) createUser(t *testing.T, name, role string) models.User {
	t.Helper()
	u := models.User{
		FullName:     name,
		Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		PasswordHash: "unused",
		Role:         role,
		Status:       models.StatusVerified,
		ProfilePic:   "avatars/" + strings.ToLower(strings.ReplaceAll(name, " ", "-")) + ".png",
	}
	if err := e.db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

// createBook inserts a book directly so no broadcast is triggered.
func (e *testEnv) createBook(t *testing.T, uploader models.User, title string) models.Book {
	t.Helper()
	b := models.Book{Title: title, Author: "Anon", UploaderID: uploader.ID}
	if err := e.db.Create(&b).Error; err != nil {
		t.Fatalf("create book %s: %v", title, err)
	}
	return b
}

func (e *testEnv) comment(t *testing.T, book models.Book, author models.User, content string, parent *uint) *CommentView {
	t.Helper()
	c, err := e.svc.Comments.PostComment(context.Background(), PostCommentInput{
		BookID:   book.ID,
		AuthorID: author.ID,
		Content:  content,
		ParentID: parent,
	})
	if err != nil {
		t.Fatalf("post comment %q: %v", content, err)
	}
	return c
}

func (e *testEnv) notificationsFor(t *testing.T, userID uint) []models.Notification {
	t.Helper()
	var out []models.Notification
	if err := e.db.Where("user_id = ?", userID).Order("id ASC").Find(&out).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	return out
}

func (e *testEnv) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func identity(u models.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Role: u.Role, FullName: u.FullName}
}

// at pins a comment's creation time so orderings are deterministic.
func (e *testEnv) at(t *testing.T, commentID uint, ts time.Time) {
	t.Helper()
	if err := e.db.Model(&models.Comment{}).Where("id = ?", commentID).UpdateColumn("created_at", ts).Error; err != nil {
		t.Fatalf("pin created_at: %v", err)
	}
}

func uintPtr(v uint) *uint { return &v }

func readerName(i int) string { return fmt.Sprintf("Reader %03d", i) }

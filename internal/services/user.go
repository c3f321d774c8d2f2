package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"bookcircle/internal/apperr"
	"bookcircle/internal/auth"
	"bookcircle/internal/config"
	"bookcircle/internal/models"
	"bookcircle/internal/storage"
	"bookcircle/internal/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	minPasswordLen = 8
	verifyTokenTTL = 24 * time.Hour
)

var (
	ErrEmailTaken         = apperr.Conflict("email already registered")
	ErrInvalidCredentials = apperr.Unauthenticated("invalid email or password")
	ErrEmailNotVerified   = apperr.Forbidden("email address not verified")
)

// Mailer delivers account emails.
type Mailer interface {
	SendVerificationEmail(to, name, link string)
}

type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

// UpdateProfileInput changes only the fields that are set. Changing the
// email or password requires CurrentPassword.
type UpdateProfileInput struct {
	FullName        *string
	Email           *string
	NewPassword     *string
	CurrentPassword string
}

// UserView is the public shape of a user.
type UserView struct {
	ID         uint      `json:"id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	ProfilePic string    `json:"profile_pic"`
	CreatedAt  time.Time `json:"created_at"`
}

// Activity is a user's recent contributions.
type Activity struct {
	Comments []CommentView `json:"comments"`
	Books    []models.Book `json:"books"`
}

type UserService struct {
	db              *gorm.DB
	store           storage.ObjectStore
	cache           *utils.Cache
	mailer          Mailer
	comments        *CommentService
	requireVerified bool
	siteURL         string
}

func NewUserService(db *gorm.DB, store storage.ObjectStore, cache *utils.Cache, mailer Mailer, comments *CommentService, cfg config.Config) *UserService {
	return &UserService{
		db:              db,
		store:           store,
		cache:           cache,
		mailer:          mailer,
		comments:        comments,
		requireVerified: cfg.RequireVerifiedEmail,
		siteURL:         strings.TrimRight(cfg.SiteURL, "/"),
	}
}

// Register creates an account. When email verification is required the
// account starts unverified and a verification link is mailed.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	fullName := strings.TrimSpace(in.FullName)
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if fullName == "" {
		return nil, apperr.Validation("full name is required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	db := s.db.WithContext(ctx)
	var existing int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, serviceErr("register", err)
	}
	if existing > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, serviceErr("hash password", err)
	}
	user := models.User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Status:       models.StatusVerified,
	}
	var token string
	if s.requireVerified {
		token = uuid.NewString()
		expires := time.Now().Add(verifyTokenTTL)
		user.Status = models.StatusUnverified
		user.VerifyToken = auth.HashToken(token)
		user.VerifyTokenExpiry = &expires
	}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, serviceErr("register", err)
	}
	slog.Info("user registered", "user_id", user.ID, "status", user.Status)

	if token != "" && s.mailer != nil {
		link := fmt.Sprintf("%s/api/auth/verify-email?token=%s", s.siteURL, token)
		s.mailer.SendVerificationEmail(user.Email, user.FullName, link)
	}
	return &user, nil
}

// VerifyEmail marks the account owning token as verified.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.Validation("verification token is required")
	}
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Where("verify_token = ?", auth.HashToken(token)).First(&user).Error; err != nil {
		return nil, serviceErr("verify email", notFoundOr(err, "verification link is invalid or expired"))
	}
	if user.VerifyTokenExpiry == nil || time.Now().After(*user.VerifyTokenExpiry) {
		return nil, apperr.NotFound("verification link is invalid or expired")
	}
	err := db.Model(&user).Updates(map[string]any{
		"status":              models.StatusVerified,
		"verify_token":        "",
		"verify_token_expiry": nil,
	}).Error
	if err != nil {
		return nil, serviceErr("verify email", err)
	}
	user.Status = models.StatusVerified
	return &user, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords fail
// the same way.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, serviceErr("authenticate", err)
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if s.requireVerified && user.Status != models.StatusVerified {
		return nil, ErrEmailNotVerified
	}
	return &user, nil
}

func (s *UserService) GetUser(ctx context.Context, userID uint) (*UserView, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, serviceErr("get user", notFoundOr(err, "user not found"))
	}
	view := s.View(ctx, &user)
	return &view, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]UserView, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&users).Error; err != nil {
		return nil, serviceErr("list users", err)
	}
	out := make([]UserView, len(users))
	for i := range users {
		out[i] = s.View(ctx, &users[i])
	}
	return out, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in UpdateProfileInput) (*UserView, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, serviceErr("update profile", notFoundOr(err, "user not found"))
	}

	updates := map[string]any{}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, apperr.Validation("full name cannot be empty")
		}
		updates["full_name"] = name
	}
	if in.Email != nil || in.NewPassword != nil {
		if !auth.CheckPasswordHash(in.CurrentPassword, user.PasswordHash) {
			return nil, apperr.Validation("current password is incorrect")
		}
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		if email != user.Email {
			var taken int64
			if err := db.Model(&models.User{}).Where("email = ? AND id <> ?", email, userID).Count(&taken).Error; err != nil {
				return nil, serviceErr("update profile", err)
			}
			if taken > 0 {
				return nil, ErrEmailTaken
			}
			updates["email"] = email
		}
	}
	if in.NewPassword != nil {
		if len(*in.NewPassword) < minPasswordLen {
			return nil, apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
		}
		hash, err := auth.HashPassword(*in.NewPassword)
		if err != nil {
			return nil, serviceErr("hash password", err)
		}
		updates["password_hash"] = hash
	}
	if len(updates) > 0 {
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrEmailTaken
			}
			return nil, serviceErr("update profile", err)
		}
	}
	return s.GetUser(ctx, userID)
}

// SetProfilePicture stores a new picture and drops the previous one.
func (s *UserService) SetProfilePicture(ctx context.Context, userID uint, up *Upload) (*UserView, error) {
	if up == nil {
		return nil, apperr.Validation("profile picture must be an image")
	}
	if err := up.accept(storage.IsImage, "profile picture must be an image"); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Select("id", "profile_pic").First(&user, userID).Error; err != nil {
		return nil, serviceErr("set profile picture", notFoundOr(err, "user not found"))
	}
	old := user.ProfilePic
	key, err := putUpload(ctx, s.store, "avatars", up)
	if err != nil {
		return nil, err
	}
	if err := db.Model(&user).Update("profile_pic", key).Error; err != nil {
		deleteObjects(ctx, s.store, key)
		return nil, serviceErr("set profile picture", err)
	}
	deleteObjects(ctx, s.store, old)
	return s.GetUser(ctx, userID)
}

// ChangeRole sets the target's role to user or admin.
func (s *UserService) ChangeRole(ctx context.Context, targetID uint, role string) (*UserView, error) {
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, apperr.Validation("role must be user or admin")
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", targetID).Update("role", role)
	if res.Error != nil {
		return nil, serviceErr("change role", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("user not found")
	}
	slog.Info("user role changed", "user_id", targetID, "role", role)
	return s.GetUser(ctx, targetID)
}

// DeleteUser removes a user and everything hanging off them in dependency
// order: likes, votes, bookmarks, notifications, comments (with replies),
// their books with all book content, then the user row.
func (s *UserService) DeleteUser(ctx context.Context, targetID uint) error {
	var user models.User
	var mediaKeys []string
	var touchedBooks []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, targetID).Error; err != nil {
			return notFoundOr(err, "user not found")
		}

		var books []models.Book
		if err := tx.Select("id", "pdf_key").Where("uploader_id = ?", targetID).Find(&books).Error; err != nil {
			return err
		}
		bookIDs := make([]uint, len(books))
		for i, b := range books {
			bookIDs[i] = b.ID
			mediaKeys = append(mediaKeys, b.PDFKey)
		}

		var seed []uint
		if err := tx.Model(&models.Comment{}).Where("user_id = ? OR book_id IN ?", targetID, bookIDs).Pluck("id", &seed).Error; err != nil {
			return err
		}
		commentIDs, err := collectSubtree(tx, seed)
		if err != nil {
			return err
		}
		var commentMedia []string
		if err := tx.Model(&models.Comment{}).Where("id IN ? AND media_key <> ''", commentIDs).Pluck("media_key", &commentMedia).Error; err != nil {
			return err
		}
		mediaKeys = append(mediaKeys, commentMedia...)

		// Counters on surviving books and comments the user voted on or liked.
		var votedBooks, likedComments []uint
		if err := tx.Model(&models.BookVote{}).Where("user_id = ? AND book_id NOT IN ?", targetID, append(bookIDs, 0)).Pluck("book_id", &votedBooks).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.CommentLike{}).Where("user_id = ? AND comment_id NOT IN ?", targetID, append(commentIDs, 0)).Pluck("comment_id", &likedComments).Error; err != nil {
			return err
		}
		var repliedBooks []uint
		if err := tx.Model(&models.Comment{}).Distinct("book_id").Where("id IN ? AND book_id NOT IN ?", commentIDs, append(bookIDs, 0)).Pluck("book_id", &repliedBooks).Error; err != nil {
			return err
		}
		touchedBooks = append(append(append(touchedBooks, bookIDs...), votedBooks...), repliedBooks...)

		if err := tx.Where("user_id = ? OR comment_id IN ?", targetID, commentIDs).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR book_id IN ?", targetID, bookIDs).Delete(&models.BookVote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR book_id IN ?", targetID, bookIDs).Delete(&models.Bookmark{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR sender_id = ?", targetID, targetID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := deleteNotificationsTx(tx, bookIDs, commentIDs); err != nil {
			return err
		}
		if err := tx.Where("id IN ?", commentIDs).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", bookIDs).Delete(&models.Book{}).Error; err != nil {
			return err
		}
		if err := recountBooks(tx, votedBooks); err != nil {
			return err
		}
		if err := recountComments(tx, likedComments); err != nil {
			return err
		}
		return tx.Delete(&models.User{}, targetID).Error
	})
	if err != nil {
		return serviceErr("delete user", err)
	}

	for _, id := range touchedBooks {
		s.cache.Delete(bookCacheKey(id))
	}
	deleteObjects(ctx, s.store, append(mediaKeys, user.ProfilePic)...)
	slog.Info("user deleted", "user_id", targetID)
	return nil
}

// Activity returns the user's latest comments and uploads.
func (s *UserService) Activity(ctx context.Context, userID uint) (*Activity, error) {
	db := s.db.WithContext(ctx)
	var books []models.Book
	err := db.Where("uploader_id = ?", userID).
		Order("created_at DESC, id DESC").Limit(activityLimit).
		Find(&books).Error
	if err != nil {
		return nil, serviceErr("user activity", err)
	}
	if err := fillCommentCounts(db, books); err != nil {
		return nil, serviceErr("user activity", err)
	}
	recent, err := s.comments.RecentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Activity{Comments: recent, Books: books}, nil
}

// SeedAdmin creates the initial admin account unless the email is taken.
func (s *UserService) SeedAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return serviceErr("seed admin", err)
	}
	if count > 0 {
		slog.Debug("admin already seeded, skipping", "email", email)
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return serviceErr("seed admin", err)
	}
	admin := models.User{
		FullName:     "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Status:       models.StatusVerified,
	}
	if err := db.Create(&admin).Error; err != nil {
		return serviceErr("seed admin", err)
	}
	slog.Info("initial admin created", "user_id", admin.ID)
	return nil
}

func (s *UserService) View(ctx context.Context, u *models.User) UserView {
	return UserView{
		ID:         u.ID,
		FullName:   u.FullName,
		Email:      u.Email,
		Role:       u.Role,
		Status:     u.Status,
		ProfilePic: mediaURL(ctx, s.store, u.ProfilePic),
		CreatedAt:  u.CreatedAt,
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", apperr.Validation("email address is invalid")
	}
	return email, nil
}

// Package auth issues and validates login sessions and answers the
// authorization questions the rest of the app asks about a caller.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookcircle/internal/apperr"
	"bookcircle/internal/config"
	"bookcircle/internal/models"

	"gorm.io/gorm"
)

var (
	ErrSessionInvalid = apperr.Unauthenticated("invalid or expired session")
	ErrAdminOnly      = apperr.Forbidden("admin access required")
	ErrUploadDenied   = apperr.Forbidden("only admins may upload books")
)

// Identity is the caller resolved from a valid session.
type Identity struct {
	UserID   uint   `json:"id"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// Authenticator keeps one live session per user. The user row stores a
// fingerprint of the current token and its expiry; issuing a new token
// replaces both.
type Authenticator struct {
	db     *gorm.DB
	signer *TokenSigner
}

func NewAuthenticator(db *gorm.DB, signer *TokenSigner) *Authenticator {
	return &Authenticator{db: db, signer: signer}
}

// IssueSession signs a token for the user and persists its fingerprint.
func (a *Authenticator) IssueSession(ctx context.Context, userID uint, role string) (string, time.Time, error) {
	token, expiresAt, err := a.signer.Sign(userID, role)
	if err != nil {
		return "", time.Time{}, apperr.Internal(err)
	}
	res := a.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"session_fingerprint": HashToken(token),
		"session_expiry":      expiresAt,
	})
	if res.Error != nil {
		return "", time.Time{}, apperr.Internal(fmt.Errorf("store session: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return "", time.Time{}, apperr.NotFound("user not found")
	}
	return token, expiresAt, nil
}

// ValidateSession resolves token to the identity it was issued for. Role and
// name are read from the user row so changes apply without a new login.
func (a *Authenticator) ValidateSession(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrSessionInvalid
	}
	claims, err := a.signer.Parse(token)
	if err != nil {
		slog.Debug("session token rejected", "error", err)
		return Identity{}, ErrSessionInvalid
	}
	userID, err := claims.UserID()
	if err != nil {
		return Identity{}, ErrSessionInvalid
	}

	var user models.User
	if err := a.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, ErrSessionInvalid
		}
		return Identity{}, apperr.Internal(fmt.Errorf("load session user: %w", err))
	}
	if !VerifyToken(token, user.SessionFingerprint) {
		return Identity{}, ErrSessionInvalid
	}
	if user.SessionExpiry == nil || !user.SessionExpiry.After(a.signer.now()) {
		return Identity{}, ErrSessionInvalid
	}
	return Identity{UserID: user.ID, Role: user.Role, FullName: user.FullName}, nil
}

// EndSession clears the stored fingerprint so the token stops validating.
func (a *Authenticator) EndSession(ctx context.Context, userID uint) error {
	err := a.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"session_fingerprint": "",
		"session_expiry":      nil,
	}).Error
	if err != nil {
		return apperr.Internal(fmt.Errorf("end session: %w", err))
	}
	return nil
}

// RequireAdmin rejects non-admin callers.
func RequireAdmin(id Identity) error {
	if !id.IsAdmin() {
		return ErrAdminOnly
	}
	return nil
}

// CanUploadBooks applies the book upload policy to the caller.
func CanUploadBooks(policy string, id Identity) error {
	if policy == config.UploadPolicyAdmin && !id.IsAdmin() {
		return ErrUploadDenied
	}
	return nil
}

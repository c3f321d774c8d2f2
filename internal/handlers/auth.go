package handlers

import (
	"net/http"
	"time"

	"bookcircle/internal/auth"
	"bookcircle/internal/middleware"
	"bookcircle/internal/models"
	"bookcircle/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	users         *services.UserService
	authenticator *auth.Authenticator
	secureCookie  bool
}

func NewAuthHandler(users *services.UserService, authenticator *auth.Authenticator, secureCookie bool) *AuthHandler {
	return &AuthHandler{users: users, authenticator: authenticator, secureCookie: secureCookie}
}

type registerRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "full_name, email and password are required")
		return
	}
	user, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	message := "registration successful"
	if user.Status == models.StatusUnverified {
		message = "registration successful, check your email to verify the account"
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": message,
		"user":    h.users.View(c.Request.Context(), user),
	})
}

// Login checks credentials and starts the single live session for the user.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	ctx := c.Request.Context()
	user, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	token, expiresAt, err := h.authenticator.IssueSession(ctx, user.ID, user.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionTokenKey, token)
	session.Options(h.cookieOptions(int(time.Until(expiresAt).Seconds())))
	if err := session.Save(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       h.users.View(ctx, user),
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authenticator.EndSession(c.Request.Context(), currentUser(c).UserID); err != nil {
		respondError(c, err)
		return
	}
	session := sessions.Default(c)
	session.Clear()
	session.Options(h.cookieOptions(-1))
	if err := session.Save(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	user, err := h.users.VerifyEmail(c.Request.Context(), c.Query("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email verified", "user": h.users.View(c.Request.Context(), user)})
}

func (h *AuthHandler) cookieOptions(maxAge int) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

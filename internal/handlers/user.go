package handlers

import (
	"net/http"

	"bookcircle/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users          *services.UserService
	maxUploadBytes int64
}

func NewUserHandler(s *services.Services, maxUploadBytes int64) *UserHandler {
	return &UserHandler{users: s.Users, maxUploadBytes: maxUploadBytes}
}

type updateProfileRequest struct {
	FullName        *string `json:"full_name"`
	Email           *string `json:"email"`
	NewPassword     *string `json:"new_password"`
	CurrentPassword string  `json:"current_password"`
}

func (h *UserHandler) Me(c *gin.Context) {
	h.respondUser(c, currentUser(c).UserID)
}

// Profile is a user's public page.
func (h *UserHandler) Profile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.respondUser(c, id)
}

func (h *UserHandler) UpdateSettings(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid profile payload")
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), currentUser(c).UserID, services.UpdateProfileInput{
		FullName:        req.FullName,
		Email:           req.Email,
		NewPassword:     req.NewPassword,
		CurrentPassword: req.CurrentPassword,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfilePic expects a multipart form with an "image" file.
func (h *UserHandler) UpdateProfilePic(c *gin.Context) {
	limitBody(c, h.maxUploadBytes)
	if !isMultipart(c) {
		badRequest(c, "profile picture must be sent as multipart form data")
		return
	}
	image, closeFile, err := formUpload(c, "image", h.maxUploadBytes)
	if err != nil {
		respondError(c, err)
		return
	}
	defer closeFile()
	if image == nil {
		badRequest(c, "image file is required")
		return
	}
	user, err := h.users.SetProfilePicture(c.Request.Context(), currentUser(c).UserID, image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Activity lists the caller's recent comments and uploads.
func (h *UserHandler) Activity(c *gin.Context) {
	activity, err := h.users.Activity(c.Request.Context(), currentUser(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, activity)
}

func (h *UserHandler) respondUser(c *gin.Context, id uint) {
	user, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

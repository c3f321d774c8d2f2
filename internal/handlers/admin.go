package handlers

import (
	"net/http"

	"bookcircle/internal/models"
	"bookcircle/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves user management. Every route sits behind
// middleware.AdminRequired.
type AdminHandler struct {
	users *services.UserService
}

func NewAdminHandler(s *services.Services) *AdminHandler {
	return &AdminHandler{users: s.Users}
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": users})
}

// ChangeRole sets a user's role. Admins cannot demote themselves.
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role is required")
		return
	}
	if id == currentUser(c).UserID && req.Role != models.RoleAdmin {
		badRequest(c, "admins cannot remove their own admin role")
		return
	}
	user, err := h.users.ChangeRole(c.Request.Context(), id, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser removes the account and everything it owns. Admins cannot
// delete themselves.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if id == currentUser(c).UserID {
		badRequest(c, "admins cannot delete their own account")
		return
	}
	if err := h.users.DeleteUser(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

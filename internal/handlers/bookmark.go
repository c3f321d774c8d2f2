package handlers

import (
	"net/http"

	"bookcircle/internal/services"

	"github.com/gin-gonic/gin"
)

type BookmarkHandler struct {
	engagement *services.EngagementService
}

func NewBookmarkHandler(s *services.Services) *BookmarkHandler {
	return &BookmarkHandler{engagement: s.Engagement}
}

// Toggle saves or unsaves the book.
func (h *BookmarkHandler) Toggle(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	bookmarked, count, err := h.engagement.ToggleBookmark(c.Request.Context(), currentUser(c).UserID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookmarked": bookmarked, "count": count})
}

func (h *BookmarkHandler) List(c *gin.Context) {
	books, err := h.engagement.ListBookmarks(c.Request.Context(), currentUser(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": books})
}

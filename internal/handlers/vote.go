package handlers

import (
	"net/http"

	"bookcircle/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	engagement *services.EngagementService
	comments   *services.CommentService
}

func NewVoteHandler(s *services.Services) *VoteHandler {
	return &VoteHandler{engagement: s.Engagement, comments: s.Comments}
}

// Upvote casts the caller's single upvote on a book.
func (h *VoteHandler) Upvote(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	count, err := h.engagement.CastUpvote(c.Request.Context(), currentUser(c).UserID, id)
	respondCount(c, "upvotes", count, err)
}

// LikeComment casts the caller's single like and returns the updated comment.
func (h *VoteHandler) LikeComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	comment, err := h.comments.LikeComment(c.Request.Context(), currentUser(c).UserID, id)
	if err != nil {
		respondCount(c, "likes", 0, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

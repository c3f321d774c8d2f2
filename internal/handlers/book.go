package handlers

import (
	"net/http"

	"bookcircle/internal/services"

	"github.com/gin-gonic/gin"
)

type BookHandler struct {
	books          *services.BookService
	comments       *services.CommentService
	engagement     *services.EngagementService
	maxUploadBytes int64
}

func NewBookHandler(s *services.Services, maxUploadBytes int64) *BookHandler {
	return &BookHandler{
		books:          s.Books,
		comments:       s.Comments,
		engagement:     s.Engagement,
		maxUploadBytes: maxUploadBytes,
	}
}

type createBookRequest struct {
	Title        string `json:"title" form:"title"`
	Author       string `json:"author" form:"author"`
	Synopsis     string `json:"synopsis" form:"synopsis"`
	ExternalLink string `json:"external_link" form:"external_link"`
}

type createCommentRequest struct {
	Content  string `json:"content" form:"content"`
	ParentID *uint  `json:"parent_id" form:"parent_id"`
}

func (h *BookHandler) List(c *gin.Context) {
	page, err := h.books.ListBooks(c.Request.Context(), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Create accepts JSON, or a multipart form with an optional "pdf" file.
func (h *BookHandler) Create(c *gin.Context) {
	limitBody(c, h.maxUploadBytes)
	var req createBookRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, bindError(err, "invalid book payload"))
		return
	}
	in := services.CreateBookInput{
		Title:        req.Title,
		Author:       req.Author,
		Synopsis:     req.Synopsis,
		ExternalLink: req.ExternalLink,
	}
	if isMultipart(c) {
		pdf, closeFile, err := formUpload(c, "pdf", h.maxUploadBytes)
		if err != nil {
			respondError(c, err)
			return
		}
		defer closeFile()
		in.PDF = pdf
	}

	book, err := h.books.CreateBook(c.Request.Context(), currentUser(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *BookHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	book, err := h.books.GetBook(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	upvoted, err := h.engagement.HasUpvoted(ctx, currentUser(c).UserID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"book": book, "upvoted": upvoted})
}

func (h *BookHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.books.DeleteBook(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book deleted"})
}

func (h *BookHandler) ListComments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	page, err := h.comments.ListComments(c.Request.Context(), id, queryInt(c, "page"), queryInt(c, "limit"), c.Query("order"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CreateComment accepts JSON, or a multipart form with an optional "media" file.
func (h *BookHandler) CreateComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	limitBody(c, h.maxUploadBytes)
	var req createCommentRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, bindError(err, "invalid comment payload"))
		return
	}
	in := services.PostCommentInput{
		BookID:   id,
		AuthorID: currentUser(c).UserID,
		Content:  req.Content,
		ParentID: req.ParentID,
	}
	if isMultipart(c) {
		media, closeFile, err := formUpload(c, "media", h.maxUploadBytes)
		if err != nil {
			respondError(c, err)
			return
		}
		defer closeFile()
		in.Media = media
	}

	comment, err := h.comments.PostComment(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *BookHandler) ListAllComments(c *gin.Context) {
	page, err := h.comments.ListAllComments(c.Request.Context(), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *BookHandler) DeleteComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.comments.DeleteComment(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
}

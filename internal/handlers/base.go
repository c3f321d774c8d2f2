package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"bookcircle/internal/apperr"
	"bookcircle/internal/auth"
	"bookcircle/internal/middleware"
	"bookcircle/internal/services"
	"bookcircle/internal/utils"

	"github.com/gin-gonic/gin"
)

// multipartOverhead leaves room for form fields next to the file itself.
const multipartOverhead = 1 << 20

// respondError writes err as {"message": ...} with the status its kind maps to.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		slog.Error("request failed", "request_id", c.GetString(middleware.RequestIDKey), "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{"message": apperr.PublicMessage(err)})
}

// respondCount answers a vote or like. A repeated vote is a 409 that still
// carries the current count under field.
func respondCount(c *gin.Context, field string, count int, err error) {
	var conflict *services.CountConflict
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"message": conflict.Message, field: conflict.Count})
	case err != nil:
		respondError(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{field: count})
	}
}

// bindError reports an oversized body distinctly from a malformed one.
func bindError(err error, msg string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.Validation("upload is too large")
	}
	return apperr.Validation(msg)
}

func badRequest(c *gin.Context, msg string) {
	respondError(c, apperr.Validation(msg))
}

func currentUser(c *gin.Context) auth.Identity {
	id, _ := middleware.CurrentIdentity(c)
	return id
}

// paramID parses a positive numeric path parameter.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		badRequest(c, fmt.Sprintf("invalid %s", name))
	}
	return id, ok
}

func queryInt(c *gin.Context, name string) int {
	return utils.StringToInt(c.Query(name))
}

func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// formUpload opens the named multipart file. A missing file yields a nil
// upload; files above maxBytes are rejected before anything is stored.
func formUpload(c *gin.Context, field string, maxBytes int64) (*services.Upload, func(), error) {
	noop := func() {}
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, bindError(err, "invalid multipart form")
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, noop, apperr.Validation(fmt.Sprintf("%s exceeds the %d byte limit", field, maxBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, noop, apperr.Internal(fmt.Errorf("open upload: %w", err))
	}
	return &services.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, func() { f.Close() }, nil
}

// limitBody caps multipart requests so oversized uploads fail early.
func limitBody(c *gin.Context, maxBytes int64) {
	if maxBytes > 0 && isMultipart(c) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
	}
}

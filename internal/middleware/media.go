package middleware

import (
	"mime"
	"path"

	"bookcircle/internal/storage"

	"github.com/gin-gonic/gin"
)

// MediaHeaders guards files served from the media directory. Browsers must
// trust the declared type, and anything that is not plain media or a PDF is
// downloaded instead of rendered.
func MediaHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		if !storage.Inline(mime.TypeByExtension(path.Ext(c.Request.URL.Path))) {
			c.Header("Content-Disposition", "attachment")
		}
		c.Next()
	}
}

package cache

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// BannerMiddleware serves post banner images from the disk cache and captures
// misses on the way out. Only image routes are touched.
func BannerMiddleware(maxAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		urlID := bannerURLID(c.Request.URL.Path)
		if urlID == "" {
			c.Next()
			return
		}

		if cached, found := ReadCache(urlID, maxAge); found {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, http.DetectContentType(cached), cached)
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = writer

		c.Next()

		if c.Writer.Status() == http.StatusOK && writer.body.Len() > 0 {
			WriteCache(urlID, writer.body.Bytes())
		}
	}
}

// bannerURLID extracts the post URL identifier from /post-image/:urlid paths.
func bannerURLID(path string) string {
	const prefix = "/post-image/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}

	urlID := path[len(prefix):]
	if urlID == "" || strings.Contains(urlID, "/") {
		return ""
	}

	return urlID
}

package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status int
	body   []byte
}

type bodyCapture struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// ResponseCache memoizes GET responses per (path, caller) for a short TTL.
//
// It must never sit in front of access decisions, grant state or token
// resolution: those reads are required to see committed writes immediately.
// It is applied only to listings whose staleness is harmless, such as the
// organization directory and audit queries.
func ResponseCache(ttl time.Duration) gin.HandlerFunc {
	store := gocache.New(ttl, 2*ttl)

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI() + "|" + c.GetHeader("Authorization")
		if hit, ok := store.Get(key); ok {
			resp := hit.(cachedResponse)
			c.Data(resp.status, "application/json", resp.body)
			c.Abort()
			return
		}

		w := &bodyCapture{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = w
		c.Next()

		if status := c.Writer.Status(); status == http.StatusOK {
			store.Set(key, cachedResponse{status: status, body: w.buf.Bytes()}, ttl)
		}
	}
}

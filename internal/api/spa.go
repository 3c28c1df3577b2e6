package api

import (
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"guild-dashboard/internal/api/response"

	"github.com/gin-gonic/gin"
)

const indexFile = "index.html"

// SPA serves the built dashboard from fsys. Paths that match no file get
// index.html so the client-side router can take over.
func SPA(fsys fs.FS) gin.HandlerFunc {
	return func(c *gin.Context) {
		if fsys == nil || (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
			response.NotFound(c, "Route "+c.Request.URL.Path+" not found")
			return
		}

		name := strings.TrimPrefix(path.Clean("/"+c.Request.URL.Path), "/")
		if name == "" {
			name = indexFile
		}
		if serveFile(c, fsys, name) || serveFile(c, fsys, indexFile) {
			return
		}
		response.NotFound(c, "Route "+c.Request.URL.Path+" not found")
	}
}

func serveFile(c *gin.Context, fsys fs.FS, name string) bool {
	f, err := fsys.Open(name)
	if err != nil {
		return false
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return false
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if name == indexFile {
		c.Header("Cache-Control", "no-cache")
	}
	// DataFromReader does not close the reader.
	defer f.Close()
	c.DataFromReader(http.StatusOK, info.Size(), contentType, f, nil)
	return true
}

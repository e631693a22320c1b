package ui

import (
	"io"
	"net/http"
	"path"
	"strings"
)

// handleStatic serves the embedded dashboard page and its assets. Unknown
// paths fall back to index.html.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		http.Error(w, "Dashboard assets not available", http.StatusServiceUnavailable)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}

	file, err := s.assets.Open(name)
	if err != nil {
		name = "index.html"
		file, err = s.assets.Open(name)
		if err != nil {
			http.Error(w, "Dashboard not found", http.StatusNotFound)
			return
		}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil || stat.IsDir() {
		http.Error(w, "Dashboard not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType(name))
	if name == "index.html" {
		w.Header().Set("Cache-Control", "no-cache")
	}

	if rs, ok := file.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, stat.ModTime(), rs)
		return
	}
	_, _ = io.Copy(w, file)
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(name, ".css"):
		return "text/css; charset=utf-8"
	case strings.HasSuffix(name, ".js"):
		return "application/javascript; charset=utf-8"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".svg"):
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

// Package origin provides the handler that sits behind the edge boundary:
// either a reverse proxy to the deployed storefront or a file server for
// the built single-page application.
package origin

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/alsamah-store/storefront-edge/internal/botdetect"
)

// NewProxy returns a reverse proxy to target. The Host header is rewritten
// to the target's host and X-Forwarded-* headers are set.
func NewProxy(target string, logger *zap.Logger) (http.Handler, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("origin url must be absolute http(s), got %q", target)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("origin request failed", zap.String("path", r.URL.Path), zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	return proxy, nil
}

// SPA serves a built single-page application. Unknown paths that are not
// static assets fall back to index.html so client-side routing works.
type SPA struct {
	root  string
	files http.Handler
}

// NewSPA serves the directory dir, which must contain index.html.
func NewSPA(dir string) (*SPA, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("static directory is required")
	}
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return nil, fmt.Errorf("static directory needs index.html: %w", err)
	}
	return &SPA{
		root:  dir,
		files: http.FileServer(http.Dir(dir)),
	}, nil
}

// ServeHTTP implements http.Handler.
func (s *SPA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean("/" + r.URL.Path)
	if clean != "/" && !s.exists(clean) && !botdetect.IsStaticAsset(clean) {
		http.ServeFile(w, r, filepath.Join(s.root, "index.html"))
		return
	}
	s.files.ServeHTTP(w, r)
}

func (s *SPA) exists(clean string) bool {
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(clean)))
	if err != nil {
		return !errors.Is(err, fs.ErrNotExist)
	}
	return !info.IsDir() || s.hasIndex(clean)
}

func (s *SPA) hasIndex(dir string) bool {
	_, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(dir), "index.html"))
	return err == nil
}

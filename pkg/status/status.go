// Package status serves the wheel's status page and the static files next to
// it.
package status

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Snapshot is what the root page shows.
type Snapshot struct {
	Segments uint32 // segments accumulated since the last flush
	Tally    uint32
	Clock    string
}

// Provider returns the current snapshot. It is called from HTTP goroutines.
type Provider interface {
	Snapshot() Snapshot
}

var contentTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".ico":  "image/x-icon",
}

var rootPage = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html><head><title>FurBall</title></head><body>
<h1>FurBall</h1>
<p>Thank you for connecting: {{.Client}}</p>
<p>Segments since last report: {{.Segments}}</p>
<p>Manual tally: {{.Tally}}</p>
<p>Clock: {{.Clock}}</p>
</body></html>
`))

// Handler serves the status page.
type Handler struct {
	webRoot  string
	provider Provider
}

// NewHandler creates a handler serving static files from webRoot. An empty
// webRoot disables static files.
func NewHandler(webRoot string, provider Provider) *Handler {
	return &Handler{webRoot: webRoot, provider: provider}
}

// ContentType returns the content type for a file name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "text/plain"
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		h.serveRoot(w, r)
		return
	}
	if h.serveFile(w, r) {
		return
	}
	h.notFound(w, r)
}

func (h *Handler) serveRoot(w http.ResponseWriter, r *http.Request) {
	client, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		client = r.RemoteAddr
	}

	snap := h.provider.Snapshot()
	data := struct {
		Client string
		Snapshot
	}{client, snap}

	w.Header().Set("Content-Type", "text/html")
	if err := rootPage.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("failed to render status page")
	}
}

// serveFile serves the requested path from the web root. It returns false
// when there is no such file.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request) bool {
	if h.webRoot == "" {
		return false
	}

	name := r.URL.Path
	if strings.HasSuffix(name, "/") {
		name += "index.html"
	}
	// Cleaning a rooted path strips any "..".
	name = path.Clean("/" + name)
	full := filepath.Join(h.webRoot, filepath.FromSlash(name))

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return false
	}

	f, err := os.Open(full)
	if err != nil {
		return false
	}
	defer f.Close()

	w.Header().Set("Content-Type", ContentType(name))
	http.ServeContent(w, r, name, info.ModTime(), f)
	return true
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	args := r.URL.Query()
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("File Not Found\n\n")
	fmt.Fprintf(&b, "URI: %s\n", r.URL.Path)
	fmt.Fprintf(&b, "Method: %s\n", r.Method)
	fmt.Fprintf(&b, "Arguments: %d\n", len(names))
	for _, name := range names {
		fmt.Fprintf(&b, " %s: %s\n", name, args.Get(name))
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(b.String()))
}

// Server runs the status page on a listen address.
type Server struct {
	srv *http.Server
}

// NewServer creates a server for handler.
func NewServer(listen string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("status page listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

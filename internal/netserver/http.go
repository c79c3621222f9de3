package netserver

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

//go:embed docs
var docsFS embed.FS

// document is one static HTTP response body.
type document struct {
	body        []byte
	contentType string
}

// documentTable maps request paths to embedded files.
var documentTable = []struct {
	path        string
	file        string
	contentType string
}{
	{"/", "docs/index.html", "text/html; charset=utf-8"},
	{"/index.html", "docs/index.html", "text/html; charset=utf-8"},
	{"/js/fcserver.js", "docs/js/fcserver.js", "text/javascript; charset=utf-8"},
	{"/css/style.css", "docs/css/style.css", "text/css; charset=utf-8"},
}

const notFoundFile = "docs/404.html"

// loadDocuments reads the embedded document table.
func loadDocuments() (map[string]document, document, error) {
	docs := make(map[string]document, len(documentTable))
	for _, entry := range documentTable {
		body, err := docsFS.ReadFile(entry.file)
		if err != nil {
			return nil, document{}, fmt.Errorf("reading %s: %w", entry.file, err)
		}
		docs[entry.path] = document{body: body, contentType: entry.contentType}
	}

	body, err := docsFS.ReadFile(notFoundFile)
	if err != nil {
		return nil, document{}, fmt.Errorf("reading %s: %w", notFoundFile, err)
	}
	return docs, document{body: body, contentType: "text/html; charset=utf-8"}, nil
}

// buildRouter creates the HTTP router. WebSocket upgrades are accepted on
// any path; everything else is a document lookup.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/*", s.handleGet)
	r.NotFound(s.handleGet)
	r.MethodNotAllowed(s.handleGet)

	return r
}

// handleGet serves a document or upgrades the connection.
// The query string is not part of r.URL.Path, so "/?x=1" serves "/".
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}

	doc, ok := s.docs[r.URL.Path]
	status := http.StatusOK
	if !ok {
		s.logger.Debug("HTTP document not found", "path", r.URL.Path)
		doc, status = s.notFound, http.StatusNotFound
	}
	s.writeDocument(w, status, doc)
}

// writeDocument sends doc in bounded chunks. Each chunk gets a fresh write
// deadline, so a reader that stops draining is dropped.
func (s *Server) writeDocument(w http.ResponseWriter, status int, doc document) {
	h := w.Header()
	h.Set("Server", "fcserver-"+s.version)
	h.Set("Content-Type", doc.contentType)
	h.Set("Content-Length", strconv.Itoa(len(doc.body)))
	h.Set("Connection", "close")
	w.WriteHeader(status)

	rc := http.NewResponseController(w)
	chunk := s.cfg.HTTP.WriteChunkSize
	timeout := s.cfg.GetHTTPWriteTimeout()

	for off := 0; off < len(doc.body); off += chunk {
		end := min(off+chunk, len(doc.body))
		if timeout > 0 {
			//nolint:errcheck // Not every writer supports deadlines
			rc.SetWriteDeadline(time.Now().Add(timeout))
		}
		if _, err := w.Write(doc.body[off:end]); err != nil {
			s.logger.Debug("HTTP write failed", "error", err)
			return
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			s.logger.Debug("HTTP flush failed", "error", err)
			return
		}
	}
}

// loggingMiddleware logs each HTTP request with path, status, and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// recoveryMiddleware catches panics in handlers and returns a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"error", err,
					"path", r.URL.Path,
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

package receipt

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Assistant answers conversational expense questions. Wired in by main;
// nil disables the chat endpoint.
type Assistant interface {
	Reply(ctx context.Context, message string) (string, error)
}

// BasicAuth holds basic authentication credentials. Empty credentials
// disable auth entirely.
type BasicAuth struct {
	Username string
	Password string
}

// Server handles HTTP requests for receipts
type Server struct {
	service   *Service
	assistant Assistant
	basicAuth BasicAuth
	router    chi.Router
}

// NewServer creates a new Server and registers all routes.
func NewServer(service *Service, assistant Assistant, basicAuth BasicAuth) *Server {
	s := &Server{
		service:   service,
		assistant: assistant,
		basicAuth: basicAuth,
		router:    chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(corsMiddleware)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/scan", s.handleScan)

		r.Get("/receipts", s.handleListReceipts)
		r.Post("/receipts", s.handleCreateReceipt)
		r.Get("/receipts/{id}", s.handleGetReceipt)
		r.Patch("/receipts/{id}", s.handleUpdateReceipt)
		r.Delete("/receipts/{id}", s.handleDeleteReceipt)
		r.Get("/receipts/{id}/file", s.handleReceiptImage)

		r.Get("/export", s.handleExportCSV)
		r.Get("/export/xlsx", s.handleExportXLSX)
		r.Get("/summary", s.handleSummary)

		r.Post("/chat", s.handleChat)
	})
}

// corsMiddleware adds permissive CORS headers and answers preflight
// requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth enforces basic auth when credentials are configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Expense Scanner"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}
	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(credentials[0]), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(credentials[1]), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.router)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

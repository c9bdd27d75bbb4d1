package testserver

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
	"time"

	"deplopush/internal/project"
	"deplopush/internal/security"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// MaxUploadMemory is the multipart memory threshold before spooling to disk
	MaxUploadMemory = 32 << 20

	// DeployRoot is the prefix reported as deploy_path for accepted uploads
	DeployRoot = "/srv/deploy"
)

// Upload is a request received on POST /deploy
type Upload struct {
	Project   string
	Filename  string
	Size      int64
	RequestID string
	Accepted  bool
}

// Response scripts the answer to one upload request.
// With Drop set the connection is closed without any response.
type Response struct {
	Status int
	Body   any
	Drop   bool
}

// Server is a fake deployment server
type Server struct {
	Registry *project.Registry
	Locks    *LockManager
	Logger   *slog.Logger

	// UploadsPerMinute limits POST /deploy per client address; zero disables.
	// Set before calling Router.
	UploadsPerMinute int

	mu           sync.Mutex
	healthStatus int
	healthHits   int
	listHits     int
	script       []Response
	uploads      []Upload
}

// New creates a healthy server that accepts every valid upload
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		Registry:     project.NewRegistry(),
		Locks:        NewLockManager(),
		Logger:       logger,
		healthStatus: http.StatusOK,
	}
}

// Start serves s on a local httptest server that is closed with the test
func Start(t testing.TB, s *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"request_id", middleware.GetReqID(r.Context()),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	r.Get("/health", s.HandleHealth)
	r.Get("/deploy", s.HandleList)

	var limiter *RateLimiter
	if s.UploadsPerMinute > 0 {
		limiter = NewRateLimiter(s.UploadsPerMinute)
	}
	r.With(rateLimitMiddleware(limiter, s.Logger)).Post("/deploy", s.HandleDeploy)

	return r
}

// SetHealthStatus changes the status code returned by /health
func (s *Server) SetHealthStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthStatus = code
}

// Script queues responses for the next upload requests, in order.
// Once the queue is drained uploads are handled normally.
func (s *Server) Script(responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, responses...)
}

// Uploads returns every upload request received so far
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// HealthHits returns how many times /health was requested
func (s *Server) HealthHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthHits
}

// ListHits returns how many times GET /deploy was requested
func (s *Server) ListHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listHits
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.healthHits++
	status := s.healthStatus
	s.mu.Unlock()

	if status < 200 || status >= 300 {
		s.respondJSON(w, status, map[string]string{"status": "unavailable"})
		return
	}

	s.respondJSON(w, status, map[string]interface{}{
		"status":        "ok",
		"project_count": s.Registry.Count(),
	})
}

// HandleList handles project listing requests
func (s *Server) HandleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.listHits++
	s.mu.Unlock()

	s.respondJSON(w, http.StatusOK, project.ListResponse{Projects: s.Registry.List()})
}

// HandleDeploy handles archive uploads
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	s.mu.Lock()
	var scripted *Response
	if len(s.script) > 0 {
		next := s.script[0]
		s.script = s.script[1:]
		scripted = &next
	}
	s.mu.Unlock()

	if scripted != nil && scripted.Drop {
		s.record(Upload{RequestID: requestID})
		s.dropConnection(w)
		return
	}

	upload, err := s.readUpload(r)
	upload.RequestID = requestID
	if err != nil {
		s.record(upload)
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}

	if scripted != nil {
		status := scripted.Status
		if status == 0 {
			status = http.StatusOK
		}
		s.record(upload)
		s.respondJSON(w, status, scripted.Body)
		return
	}

	if err := security.ValidateProjectName(upload.Project); err != nil {
		s.record(upload)
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}

	release, holder, ok := s.Locks.Acquire(upload.Project, requestID)
	if !ok {
		s.record(upload)
		s.respondJSON(w, http.StatusConflict, map[string]interface{}{
			"success": false,
			"message": fmt.Sprintf("Deployment already in progress (request %s)", holder),
		})
		return
	}
	defer release()

	deployPath := path.Join(DeployRoot, upload.Project)
	s.Registry.Put(project.Project{Name: upload.Project, Path: deployPath})
	upload.Accepted = true
	s.record(upload)

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     "Deployment successful",
		"deploy_path": deployPath,
	})
}

func (s *Server) readUpload(r *http.Request) (Upload, error) {
	var upload Upload

	if err := r.ParseMultipartForm(MaxUploadMemory); err != nil {
		return upload, err
	}
	defer r.MultipartForm.RemoveAll()

	upload.Project = r.FormValue("project_name")

	file, header, err := r.FormFile("file")
	if err != nil {
		return upload, err
	}
	defer file.Close()

	upload.Filename = header.Filename
	n, err := io.Copy(io.Discard, file)
	if err != nil {
		return upload, err
	}
	upload.Size = n

	if upload.Project == "" {
		return upload, errMissingProject
	}
	return upload, nil
}

func (s *Server) record(u Upload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, u)
}

// dropConnection closes the underlying connection without writing a response
func (s *Server) dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "connection reset", http.StatusServiceUnavailable)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		http.Error(w, "connection reset", http.StatusServiceUnavailable)
		return
	}
	conn.Close()
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data == nil {
		return
	}
	if raw, ok := data.(string); ok {
		_, _ = io.WriteString(w, raw)
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

// clientHost strips the port so every connection from one host shares a bucket
func clientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

type uploadError string

func (e uploadError) Error() string { return string(e) }

const errMissingProject = uploadError("project_name is required")

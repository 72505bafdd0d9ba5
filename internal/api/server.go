package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"patientsync/internal/session"
	"patientsync/pkg/interfaces"
	"patientsync/pkg/types"
)

// Store is the subset of the shared store served over HTTP.
type Store interface {
	Err() error
	Stats() map[string]int

	ListUsers() []types.User
	GetUser(id int) (types.User, bool)
	GetUserByUsername(username string) (types.User, bool)
	AddUser(user types.User) types.User
	UpdateUser(user types.User) bool
	DeleteUser(id int) bool

	ListPatients() []types.Patient
	GetPatient(id int) (types.Patient, bool)
	AddPatient(patient types.Patient) types.Patient
	UpdatePatient(patient types.Patient) bool
	DeletePatient(id int) bool

	ListParameters(patientID int) []types.Parameter
	GetParameter(patientID, parameterID int) (types.Parameter, bool)
	AddParameter(patientID int, param types.Parameter) (types.Parameter, bool)
	UpdateParameter(patientID int, param types.Parameter) bool
	DeleteParameter(patientID, parameterID int) bool
}

// Hasher hashes new passwords and checks login attempts.
type Hasher interface {
	HashNew(password string) (salt string, hash string, err error)
	Verify(password, salt, hash string) bool
}

// Registry reports live connection counts for the health endpoint.
type Registry interface {
	GetStats() map[string]int
}

// Dependencies are the components the API serves. Metrics and Hub are
// optional; their routes are not mounted when nil.
type Dependencies struct {
	Store    Store
	Hasher   Hasher
	Sessions *session.Manager
	Registry Registry
	Journal  interfaces.Journal
	Metrics  http.Handler
	Hub      http.Handler
}

// Server routes the REST API, the hub upgrade endpoint and /metrics.
type Server struct {
	deps           Dependencies
	allowedOrigins []string
	logger         *zap.Logger
	router         *http.ServeMux
	started        time.Time
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func NewServer(deps Dependencies, allowedOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:           deps,
		allowedOrigins: allowedOrigins,
		logger:         logger.Named("api"),
		router:         http.NewServeMux(),
		started:        time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := func(pattern string, h http.HandlerFunc) {
		s.router.Handle(pattern, s.jsonMiddleware(h))
	}

	api("POST /authentication/login", s.login)
	api("POST /authentication/register", s.register)
	api("POST /authentication/logout", s.logout)
	s.router.Handle("GET /authentication/me", s.jsonMiddleware(session.RequireAuth(http.HandlerFunc(s.me))))

	api("GET /api/user", s.listUsers)
	api("POST /api/user", s.createUser)
	api("GET /api/user/{id}", s.getUser)
	api("PUT /api/user/{id}", s.updateUser)
	api("DELETE /api/user/{id}", s.deleteUser)
	api("GET /api/user/byusername/{username}", s.getUserByUsername)

	api("GET /api/patient", s.listPatients)
	api("POST /api/patient", s.createPatient)
	api("GET /api/patient/{id}", s.getPatient)
	api("PUT /api/patient/{id}", s.updatePatient)
	api("DELETE /api/patient/{id}", s.deletePatient)
	api("GET /api/patient/{id}/alarms", s.recentAlarms)

	api("GET /api/patient/{patientId}/parameters", s.listParameters)
	api("POST /api/patient/{patientId}/parameters", s.createParameter)
	api("GET /api/patient/{patientId}/parameters/{parameterId}", s.getParameter)
	api("PUT /api/patient/{patientId}/parameters/{parameterId}", s.updateParameter)
	api("DELETE /api/patient/{patientId}/parameters/{parameterId}", s.deleteParameter)

	api("GET /health", s.healthCheck)

	if s.deps.Metrics != nil {
		s.router.Handle("GET /metrics", s.deps.Metrics)
	}
	if s.deps.Hub != nil {
		s.router.Handle("GET /patientHub", s.deps.Hub)
	}
}

// ServeHTTP applies CORS and session resolution to every route.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var h http.Handler = s.router
	if s.deps.Sessions != nil {
		h = s.deps.Sessions.Middleware(h)
	}
	s.corsMiddleware(h).ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// decodeBody reads a single JSON document into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		if errors.Is(err, types.ErrInvalidBirthDate) {
			return err
		}
		return errors.New("invalid JSON")
	}
	return nil
}

// pathID parses a numeric path segment. ok is false when it is not an integer.
func pathID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(r.PathValue(name))
	return id, err == nil
}

// corsMiddleware echoes allowed origins with credentials so the dashboard can
// send its session cookie cross-origin during development.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.allowedOrigins, "*") || slices.Contains(s.allowedOrigins, origin)
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

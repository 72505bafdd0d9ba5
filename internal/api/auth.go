package api

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"patientsync/internal/session"
	"patientsync/pkg/types"
)

type UserResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type LoginResponse struct {
	Message   string    `json:"message"`
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// POST /authentication/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req types.AuthRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		s.logger.Warn("invalid login request", zap.Error(err))
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger := s.logger.With(zap.String("username", req.Username))
	logger.Info("login attempt")

	user, ok := s.deps.Store.GetUserByUsername(req.Username)
	if !ok {
		logger.Warn("login rejected: unknown user")
		s.sendError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}
	if !s.deps.Hasher.Verify(req.Password, user.PasswordSalt, user.PasswordHash) {
		logger.Warn("login rejected: password mismatch")
		s.sendError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, expires, err := s.deps.Sessions.Issue(user.ID, user.Username)
	if err != nil {
		logger.Error("failed to issue session", zap.Error(err))
		s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	s.deps.Sessions.SetCookie(w, token, expires)

	logger.Info("user logged in", zap.Int("user_id", user.ID))
	s.writeJSON(w, http.StatusOK, LoginResponse{
		Message:   fmt.Sprintf("Login successful for username '%s'", user.Username),
		ID:        user.ID,
		Username:  user.Username,
		ExpiresAt: expires,
	})
}

// POST /authentication/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req types.AuthRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		s.logger.Warn("invalid registration request", zap.Error(err))
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := s.addUser(types.UserRequest{Username: req.Username, Password: req.Password})
	if err != nil {
		s.sendUserError(w, err)
		return
	}

	s.logger.Info("user registered", zap.String("username", user.Username), zap.Int("user_id", user.ID))
	w.Header().Set("Location", fmt.Sprintf("/api/user/%d", user.ID))
	s.writeJSON(w, http.StatusCreated, UserResponse{ID: user.ID, Username: user.Username})
}

// POST /authentication/logout revokes the current token when there is one
// and always clears the cookie.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := session.TokenFromContext(r.Context()); ok {
		s.deps.Sessions.Revoke(token)
	}
	s.deps.Sessions.ClearCookie(w)

	if p, ok := session.PrincipalFromContext(r.Context()); ok {
		s.logger.Info("user logged out", zap.String("username", p.Username))
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Message: "Logout successful"})
}

// GET /authentication/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFromContext(r.Context())
	s.writeJSON(w, http.StatusOK, UserResponse{ID: p.UserID, Username: p.Username})
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"patientsync/pkg/types"
)

var (
	errUsernameTaken = errors.New("username already registered")
	errHashFailed    = errors.New("failed to hash password")
)

// addUser hashes the password and inserts the user. Usernames are stored
// trimmed and are unique case-insensitively.
func (s *Server) addUser(req types.UserRequest) (types.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if _, exists := s.deps.Store.GetUserByUsername(req.Username); exists {
		return types.User{}, fmt.Errorf("%w: %s", errUsernameTaken, req.Username)
	}
	salt, hash, err := s.deps.Hasher.HashNew(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return types.User{}, errHashFailed
	}
	return s.deps.Store.AddUser(types.User{
		ID:           req.ID,
		Username:     req.Username,
		PasswordSalt: salt,
		PasswordHash: hash,
	}), nil
}

func (s *Server) sendUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUsernameTaken):
		s.logger.Warn("username already registered", zap.Error(err))
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		s.sendError(w, err.Error(), http.StatusInternalServerError)
	}
}

func toUserResponses(users []types.User) []UserResponse {
	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = UserResponse{ID: u.ID, Username: u.Username}
	}
	return out
}

// GET /api/user
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toUserResponses(s.deps.Store.ListUsers()))
}

// GET /api/user/{id}
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.sendError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	user, ok := s.deps.Store.GetUser(id)
	if !ok {
		s.sendError(w, "User not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, UserResponse{ID: user.ID, Username: user.Username})
}

// GET /api/user/byusername/{username}
func (s *Server) getUserByUsername(w http.ResponseWriter, r *http.Request) {
	user, ok := s.deps.Store.GetUserByUsername(r.PathValue("username"))
	if !ok {
		s.sendError(w, "User not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, UserResponse{ID: user.ID, Username: user.Username})
}

// POST /api/user
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req types.UserRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := s.addUser(req)
	if err != nil {
		s.sendUserError(w, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/user/%d", user.ID))
	s.writeJSON(w, http.StatusCreated, UserResponse{ID: user.ID, Username: user.Username})
}

// PUT /api/user/{id} replaces username and password.
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.sendError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	var req types.UserRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID != id {
		s.sendError(w, "User ID mismatch", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, exists := s.deps.Store.GetUser(id); !exists {
		s.sendError(w, "User not found", http.StatusNotFound)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if other, taken := s.deps.Store.GetUserByUsername(req.Username); taken && other.ID != id {
		s.sendUserError(w, fmt.Errorf("%w: %s", errUsernameTaken, req.Username))
		return
	}

	salt, hash, err := s.deps.Hasher.HashNew(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		s.sendError(w, errHashFailed.Error(), http.StatusInternalServerError)
		return
	}
	if !s.deps.Store.UpdateUser(types.User{ID: id, Username: req.Username, PasswordSalt: salt, PasswordHash: hash}) {
		s.sendError(w, "User not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/user/{id}
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.sendError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if !s.deps.Store.DeleteUser(id) {
		s.sendError(w, "User not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

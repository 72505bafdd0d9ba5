package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"patientsync/internal/journal"
	"patientsync/pkg/types"
)

// Bounds for GET /api/patient/{id}/alarms?limit=N.
const (
	defaultAlarmLimit = 20
	maxAlarmLimit     = 500
)

// GET /api/patient
func (s *Server) listPatients(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Store.ListPatients())
}

// GET /api/patient/{id}
func (s *Server) getPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.sendError(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}
	patient, ok := s.deps.Store.GetPatient(id)
	if !ok {
		s.sendError(w, "Patient not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, patient)
}

// POST /api/patient
func (s *Server) createPatient(w http.ResponseWriter, r *http.Request) {
	var patient types.Patient
	if err := decodeBody(r, &patient); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := patient.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	stored := s.deps.Store.AddPatient(patient)
	s.logger.Info("patient created", zap.Int("patient_id", stored.ID))
	w.Header().Set("Location", fmt.Sprintf("/api/patient/%d", stored.ID))
	s.writeJSON(w, http.StatusCreated, stored)
}

// PUT /api/patient/{id}
func (s *Server) updatePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.sendError(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}
	var patient types.Patient
	if err := decodeBody(r, &patient); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if patient.ID != id {
		s.sendError(w, "Patient ID mismatch", http.StatusBadRequest)
		return
	}
	if err := patient.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.deps.Store.UpdatePatient(patient) {
		s.sendError(w, "Patient not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/patient/{id}
func (s *Server) deletePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.sendError(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}
	if !s.deps.Store.DeletePatient(id) {
		s.sendError(w, "Patient not found", http.StatusNotFound)
		return
	}
	s.logger.Info("patient deleted", zap.Int("patient_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/patient/{id}/alarms returns the journaled alarm writes for a
// patient, newest first.
func (s *Server) recentAlarms(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.sendError(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}
	limit := defaultAlarmLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxAlarmLimit {
			s.sendError(w, fmt.Sprintf("limit must be between 1 and %d", maxAlarmLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}
	if _, exists := s.deps.Store.GetPatient(id); !exists {
		s.sendError(w, "Patient not found", http.StatusNotFound)
		return
	}
	if s.deps.Journal == nil {
		s.sendError(w, "Alarm journal is not configured", http.StatusServiceUnavailable)
		return
	}

	events, err := s.deps.Journal.RecentAlarms(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, journal.ErrJournalClosed) {
			s.sendError(w, "Alarm journal is closed", http.StatusServiceUnavailable)
			return
		}
		s.logger.Error("failed to read alarm journal", zap.Int("patient_id", id), zap.Error(err))
		s.sendError(w, "Failed to read alarm history", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// GET /api/patient/{patientId}/parameters
func (s *Server) listParameters(w http.ResponseWriter, r *http.Request) {
	patientID, ok := pathID(r, "patientId")
	if !ok {
		s.sendError(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Store.ListParameters(patientID))
}

// GET /api/patient/{patientId}/parameters/{parameterId}
func (s *Server) getParameter(w http.ResponseWriter, r *http.Request) {
	patientID, parameterID, ok := parameterPath(r)
	if !ok {
		s.sendError(w, "Invalid patient or parameter ID", http.StatusBadRequest)
		return
	}
	param, ok := s.deps.Store.GetParameter(patientID, parameterID)
	if !ok {
		s.sendError(w, "Parameter not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, param)
}

// POST /api/patient/{patientId}/parameters
func (s *Server) createParameter(w http.ResponseWriter, r *http.Request) {
	patientID, ok := pathID(r, "patientId")
	if !ok {
		s.sendError(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}
	var param types.Parameter
	if err := decodeBody(r, &param); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := param.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	stored, ok := s.deps.Store.AddParameter(patientID, param)
	if !ok {
		s.sendError(w, "Patient not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/patient/%d/parameters/%d", patientID, stored.ID))
	s.writeJSON(w, http.StatusCreated, stored)
}

// PUT /api/patient/{patientId}/parameters/{parameterId}
func (s *Server) updateParameter(w http.ResponseWriter, r *http.Request) {
	patientID, parameterID, ok := parameterPath(r)
	if !ok {
		s.sendError(w, "Invalid patient or parameter ID", http.StatusBadRequest)
		return
	}
	var param types.Parameter
	if err := decodeBody(r, &param); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if param.ID != parameterID {
		s.sendError(w, "Parameter ID mismatch", http.StatusBadRequest)
		return
	}
	if err := param.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.deps.Store.UpdateParameter(patientID, param) {
		s.sendError(w, "Parameter not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/patient/{patientId}/parameters/{parameterId}
func (s *Server) deleteParameter(w http.ResponseWriter, r *http.Request) {
	patientID, parameterID, ok := parameterPath(r)
	if !ok {
		s.sendError(w, "Invalid patient or parameter ID", http.StatusBadRequest)
		return
	}
	if !s.deps.Store.DeleteParameter(patientID, parameterID) {
		s.sendError(w, "Parameter not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parameterPath(r *http.Request) (patientID, parameterID int, ok bool) {
	patientID, ok = pathID(r, "patientId")
	if !ok {
		return 0, 0, false
	}
	parameterID, ok = pathID(r, "parameterId")
	return patientID, parameterID, ok
}

// Package store holds the process-wide in-memory tables of users and
// patients. Every method takes the single store mutex once and releases it
// before returning; records are copied on the way in and out so callers never
// share memory with the table.
package store

import (
	"sync"

	"go.uber.org/zap"

	"patientsync/pkg/types"
)

// Outcomes recorded in operation traces.
const (
	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeClosed   = "closed"
)

// Store is the shared in-memory table. Construct it with New or NewSeeded and
// pass the pointer to every component that needs it.
type Store struct {
	mu       sync.Mutex
	users    []types.User
	patients []types.Patient
	closed   bool
	logger   *zap.Logger
}

// New returns an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		users:    []types.User{},
		patients: []types.Patient{},
		logger:   logger.Named("store"),
	}
}

// Close makes the store unusable. Afterwards every read returns an empty
// result, every write is a no-op and Err reports ErrStoreClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.trace("Close", 0, outcomeOK)
}

// Err returns ErrStoreClosed after Close, nil otherwise.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Stats returns table sizes for health reporting.
func (s *Store) Stats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	parameters := 0
	for i := range s.patients {
		parameters += len(s.patients[i].Parameters)
	}
	return map[string]int{
		"users":      len(s.users),
		"patients":   len(s.patients),
		"parameters": parameters,
	}
}

// --- Users ---

// ListUsers returns a copy of every user in insertion order.
func (s *Store) ListUsers() []types.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.trace("ListUsers", 0, outcomeClosed)
		return []types.User{}
	}
	users := make([]types.User, len(s.users))
	copy(users, s.users)
	s.trace("ListUsers", 0, outcomeOK)
	return users
}

// GetUser returns the user with id.
func (s *Store) GetUser(id int) (types.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.userIndex(id)
	if idx < 0 {
		s.trace("GetUser", id, s.missOutcome())
		return types.User{}, false
	}
	s.trace("GetUser", id, outcomeOK)
	return s.users[idx], true
}

// GetUserByUsername looks a user up case-insensitively, ignoring surrounding
// whitespace.
func (s *Store) GetUserByUsername(username string) (types.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		for _, u := range s.users {
			if types.NormalizeUsername(u.Username) == types.NormalizeUsername(username) {
				s.logger.Debug("store operation",
					zap.String("operation", "GetUserByUsername"),
					zap.String("key", username),
					zap.String("outcome", outcomeOK))
				return u, true
			}
		}
	}
	s.logger.Debug("store operation",
		zap.String("operation", "GetUserByUsername"),
		zap.String("key", username),
		zap.String("outcome", s.missOutcome()))
	return types.User{}, false
}

// AddUser inserts user and returns the stored copy. An UnassignedID is
// replaced with max+1 (or FirstUserID when empty); any other ID is kept as
// given.
func (s *Store) AddUser(user types.User) types.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.trace("AddUser", user.ID, outcomeClosed)
		return user
	}
	if user.ID == types.UnassignedID {
		user.ID = s.nextUserID()
	}
	s.users = append(s.users, user)
	s.trace("AddUser", user.ID, outcomeOK)
	return user
}

// UpdateUser replaces the user with the same ID. A missing ID is a no-op and
// returns false.
func (s *Store) UpdateUser(user types.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.userIndex(user.ID)
	if idx < 0 {
		s.trace("UpdateUser", user.ID, s.missOutcome())
		return false
	}
	s.users[idx] = user
	s.trace("UpdateUser", user.ID, outcomeOK)
	return true
}

// DeleteUser removes the user with id and reports whether it existed.
func (s *Store) DeleteUser(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.userIndex(id)
	if idx < 0 {
		s.trace("DeleteUser", id, s.missOutcome())
		return false
	}
	s.users = append(s.users[:idx], s.users[idx+1:]...)
	s.trace("DeleteUser", id, outcomeOK)
	return true
}

// --- Patients ---

// ListPatients returns a point-in-time copy of every patient.
func (s *Store) ListPatients() []types.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.trace("ListPatients", 0, outcomeClosed)
		return []types.Patient{}
	}
	patients := make([]types.Patient, len(s.patients))
	for i := range s.patients {
		patients[i] = s.patients[i].Clone()
	}
	s.trace("ListPatients", 0, outcomeOK)
	return patients
}

// GetPatient returns a copy of the patient with id.
func (s *Store) GetPatient(id int) (types.Patient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.patientIndex(id)
	if idx < 0 {
		s.trace("GetPatient", id, s.missOutcome())
		return types.Patient{}, false
	}
	s.trace("GetPatient", id, outcomeOK)
	return s.patients[idx].Clone(), true
}

// AddPatient inserts patient and returns the stored copy. ID assignment
// follows AddUser with FirstPatientID as the floor. Parameters keep their
// order; a parameter whose ID repeats an earlier one in the list is given
// max+1 so IDs are unique within the patient.
func (s *Store) AddPatient(patient types.Patient) types.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()

	patient = patient.Clone()
	if s.closed {
		s.trace("AddPatient", patient.ID, outcomeClosed)
		return patient
	}
	if patient.ID == types.UnassignedID {
		patient.ID = s.nextPatientID()
	}
	dedupeParameterIDs(patient.Parameters)
	s.patients = append(s.patients, patient)
	s.trace("AddPatient", patient.ID, outcomeOK)
	return patient.Clone()
}

// UpdatePatient replaces the whole record with the same ID. A missing ID is a
// no-op and returns false.
func (s *Store) UpdatePatient(patient types.Patient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.patientIndex(patient.ID)
	if idx < 0 {
		s.trace("UpdatePatient", patient.ID, s.missOutcome())
		return false
	}
	s.patients[idx] = patient.Clone()
	s.trace("UpdatePatient", patient.ID, outcomeOK)
	return true
}

// DeletePatient removes the patient with id and reports whether it existed.
func (s *Store) DeletePatient(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.patientIndex(id)
	if idx < 0 {
		s.trace("DeletePatient", id, s.missOutcome())
		return false
	}
	s.patients = append(s.patients[:idx], s.patients[idx+1:]...)
	s.trace("DeletePatient", id, outcomeOK)
	return true
}

// --- Parameters ---

// ListParameters returns the patient's parameters in order, or an empty list
// when the patient does not exist.
func (s *Store) ListParameters(patientID int) []types.Parameter {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.patientIndex(patientID)
	if idx < 0 {
		s.trace("ListParameters", patientID, s.missOutcome())
		return []types.Parameter{}
	}
	params := make([]types.Parameter, len(s.patients[idx].Parameters))
	copy(params, s.patients[idx].Parameters)
	s.trace("ListParameters", patientID, outcomeOK)
	return params
}

// GetParameter returns parameter parameterID of patient patientID.
func (s *Store) GetParameter(patientID, parameterID int) (types.Parameter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pIdx, prmIdx := s.parameterIndex(patientID, parameterID)
	if prmIdx < 0 {
		s.traceParam("GetParameter", patientID, parameterID, s.missOutcome())
		return types.Parameter{}, false
	}
	s.traceParam("GetParameter", patientID, parameterID, outcomeOK)
	return s.patients[pIdx].Parameters[prmIdx], true
}

// AddParameter appends param to the patient's list with ID max+1 (or
// FirstParameterID for the first one). Any ID on param is ignored. Returns
// false when the patient does not exist.
func (s *Store) AddParameter(patientID int, param types.Parameter) (types.Parameter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.patientIndex(patientID)
	if idx < 0 {
		s.trace("AddParameter", patientID, s.missOutcome())
		return types.Parameter{}, false
	}
	patient := &s.patients[idx]
	param.ID = nextParameterID(patient.Parameters)
	patient.Parameters = append(patient.Parameters, param)
	s.traceParam("AddParameter", patientID, param.ID, outcomeOK)
	return param, true
}

// UpdateParameter replaces the parameter with param.ID in place, keeping its
// position. Returns false when the patient or parameter does not exist.
func (s *Store) UpdateParameter(patientID int, param types.Parameter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pIdx, prmIdx := s.parameterIndex(patientID, param.ID)
	if prmIdx < 0 {
		s.traceParam("UpdateParameter", patientID, param.ID, s.missOutcome())
		return false
	}
	s.patients[pIdx].Parameters[prmIdx] = param
	s.traceParam("UpdateParameter", patientID, param.ID, outcomeOK)
	return true
}

// DeleteParameter removes one parameter. Returns false when the patient or
// parameter does not exist.
func (s *Store) DeleteParameter(patientID, parameterID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pIdx, prmIdx := s.parameterIndex(patientID, parameterID)
	if prmIdx < 0 {
		s.traceParam("DeleteParameter", patientID, parameterID, s.missOutcome())
		return false
	}
	params := s.patients[pIdx].Parameters
	s.patients[pIdx].Parameters = append(params[:prmIdx], params[prmIdx+1:]...)
	s.traceParam("DeleteParameter", patientID, parameterID, outcomeOK)
	return true
}

// --- helpers; callers hold s.mu ---

func (s *Store) userIndex(id int) int {
	if s.closed {
		return -1
	}
	for i := range s.users {
		if s.users[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) patientIndex(id int) int {
	if s.closed {
		return -1
	}
	for i := range s.patients {
		if s.patients[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) parameterIndex(patientID, parameterID int) (int, int) {
	pIdx := s.patientIndex(patientID)
	if pIdx < 0 {
		return -1, -1
	}
	for i, p := range s.patients[pIdx].Parameters {
		if p.ID == parameterID {
			return pIdx, i
		}
	}
	return pIdx, -1
}

func (s *Store) nextUserID() int {
	if len(s.users) == 0 {
		return types.FirstUserID
	}
	highest := s.users[0].ID
	for _, u := range s.users[1:] {
		if u.ID > highest {
			highest = u.ID
		}
	}
	return highest + 1
}

func (s *Store) nextPatientID() int {
	if len(s.patients) == 0 {
		return types.FirstPatientID
	}
	highest := s.patients[0].ID
	for _, p := range s.patients[1:] {
		if p.ID > highest {
			highest = p.ID
		}
	}
	return highest + 1
}

func nextParameterID(params []types.Parameter) int {
	if len(params) == 0 {
		return types.FirstParameterID
	}
	highest := params[0].ID
	for _, p := range params[1:] {
		if p.ID > highest {
			highest = p.ID
		}
	}
	return highest + 1
}

func dedupeParameterIDs(params []types.Parameter) {
	seen := make(map[int]bool, len(params))
	for i := range params {
		if seen[params[i].ID] {
			params[i].ID = nextParameterID(params)
		}
		seen[params[i].ID] = true
	}
}

func (s *Store) missOutcome() string {
	if s.closed {
		return outcomeClosed
	}
	return outcomeNotFound
}

func (s *Store) trace(operation string, key int, outcome string) {
	s.logger.Debug("store operation",
		zap.String("operation", operation),
		zap.Int("key", key),
		zap.String("outcome", outcome))
}

func (s *Store) traceParam(operation string, patientID, parameterID int, outcome string) {
	s.logger.Debug("store operation",
		zap.String("operation", operation),
		zap.Int("key", patientID),
		zap.Int("parameter", parameterID),
		zap.String("outcome", outcome))
}

package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"patientsync/pkg/types"
)

// PasswordHasher produces a salt and hash for a new password.
type PasswordHasher interface {
	HashNew(password string) (salt string, hash string, err error)
}

// Seed account and patient loaded by NewSeeded.
const (
	SeedUsername = "admin"
	SeedPassword = "password"
)

// NewSeeded returns a store holding the demo account and the demo patient.
func NewSeeded(logger *zap.Logger, hasher PasswordHasher) (*Store, error) {
	s := New(logger)

	salt, hash, err := hasher.HashNew(SeedPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash seed password: %w", err)
	}
	s.AddUser(types.User{
		ID:           1,
		Username:     SeedUsername,
		PasswordSalt: salt,
		PasswordHash: hash,
	})
	s.AddPatient(SeedPatient())

	return s, nil
}

// SeedPatient is the demo patient with three parameters.
func SeedPatient() types.Patient {
	return types.Patient{
		ID:         2,
		FamilyName: "Jack",
		GivenName:  "Alfred",
		BirthDate:  types.NewDate(1949, time.May, 25),
		Sex:        "M",
		Parameters: []types.Parameter{
			{ID: 0, Name: "356DHAAPH1", Value: "0.2810233897906837", Alarm: false},
			{ID: 1, Name: "J0EREMM0JI", Value: "0.8373179071756629", Alarm: true},
			{ID: 2, Name: "ZPL99W1THC", Value: "0.032467747122267146", Alarm: true},
		},
	}
}

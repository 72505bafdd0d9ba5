// Package alarm runs the background task that randomly flips one parameter
// alarm per patient on a fixed period and tells clients to re-fetch.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"patientsync/internal/metrics"
	"patientsync/pkg/interfaces"
	"patientsync/pkg/types"
)

// DefaultPeriod is the delay between mutation passes.
const DefaultPeriod = 10 * time.Second

// PatientStore is the part of the shared store the mutator needs.
type PatientStore interface {
	Err() error
	ListPatients() []types.Patient
	UpdatePatient(patient types.Patient) bool
}

// Rand picks uniformly in [0, n).
type Rand interface {
	Intn(n int) int
}

type defaultRand struct{}

func (defaultRand) Intn(n int) int { return rand.IntN(n) }

type Config struct {
	Period time.Duration
	// Rand defaults to math/rand/v2.
	Rand Rand
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// Mutator is single-use: Run may be called once.
type Mutator struct {
	store    PatientStore
	notifier interfaces.Notifier
	journal  interfaces.Journal
	metrics  *metrics.Metrics
	rand     Rand
	period   time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	state state
}

// New builds a mutator. journal and m may be nil.
func New(cfg Config, store PatientStore, notifier interfaces.Notifier, journal interfaces.Journal, m *metrics.Metrics, logger *zap.Logger) *Mutator {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Rand == nil {
		cfg.Rand = defaultRand{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mutator{
		store:    store,
		notifier: notifier,
		journal:  journal,
		metrics:  m,
		rand:     cfg.Rand,
		period:   cfg.Period,
		logger:   logger.Named("alarm"),
	}
}

// Run executes a pass immediately and then once per period until ctx is
// cancelled, returning nil. It returns an error wrapping ErrStoreUnavailable
// when the store fails; that is the only fatal condition.
func (m *Mutator) Run(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case stateRunning:
		m.mu.Unlock()
		return ErrMutatorRunning
	case stateStopped:
		m.mu.Unlock()
		return ErrMutatorStopped
	}
	m.state = stateRunning
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.state = stateStopped
		m.mu.Unlock()
	}()

	m.logger.Info("alarm mutator started", zap.Duration("period", m.period))

	for {
		if ctx.Err() != nil {
			m.logger.Info("alarm mutator stopped")
			return nil
		}

		if err := m.RunCycle(ctx); err != nil {
			m.logger.Error("alarm mutator terminated: store failure", zap.Error(err))
			return err
		}

		timer := time.NewTimer(m.period)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("alarm mutator stopped")
			return nil
		}
	}
}

// Running reports whether Run is in progress.
func (m *Mutator) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateRunning
}

// RunCycle performs one mutation pass followed by one broadcast. Only a store
// failure is returned; per-patient and delivery problems are logged.
func (m *Mutator) RunCycle(ctx context.Context) error {
	if err := m.store.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	patients := m.store.ListPatients()
	mutated := 0
	for _, p := range patients {
		n := len(p.Parameters)
		if n == 0 {
			continue
		}

		i := m.rand.Intn(n)
		alarm := m.rand.Intn(2) == 0
		p.Parameters[i].Alarm = alarm

		// Full replace: a concurrent edit since the snapshot is overwritten.
		if !m.store.UpdatePatient(p) {
			if err := m.store.Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			m.logger.Debug("patient removed before write-back", zap.Int("patient_id", p.ID))
			continue
		}

		mutated++
		m.metrics.AlarmMutation(alarm)
		m.record(ctx, p.ID, p.Parameters[i].ID, alarm)
	}

	m.metrics.AlarmCycle()
	m.logger.Debug("alarm pass complete",
		zap.Int("patients", len(patients)),
		zap.Int("mutated", mutated))

	if err := m.notifier.BroadcastAll(ctx, types.EventPatientUpdate); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("failed to broadcast patient update", zap.Error(err))
	}
	return nil
}

func (m *Mutator) record(ctx context.Context, patientID, parameterID int, alarm bool) {
	if m.journal == nil {
		return
	}
	event := interfaces.AlarmEvent{
		PatientID:   patientID,
		ParameterID: parameterID,
		Alarm:       alarm,
		RecordedAt:  time.Now().UTC(),
	}
	if err := m.journal.RecordAlarm(ctx, event); err != nil {
		m.logger.Warn("failed to journal alarm change",
			zap.Int("patient_id", patientID),
			zap.Error(err))
	}
}

package alarm

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"patientsync/internal/store"
	"patientsync/pkg/interfaces"
	"patientsync/pkg/types"
)

// fixedRand always answers 0: first parameter, alarm on.
type fixedRand struct{}

func (fixedRand) Intn(n int) int { return 0 }

type seededRand struct{ r *rand.Rand }

func (s seededRand) Intn(n int) int { return s.r.IntN(n) }

type countingNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *countingNotifier) BroadcastAll(ctx context.Context, event string, args ...any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *countingNotifier) SendToPrincipal(ctx context.Context, principal, event string, args ...any) error {
	return errors.New("not expected")
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type memoryJournal struct {
	interfaces.Journal
	mu     sync.Mutex
	alarms []interfaces.AlarmEvent
}

func (j *memoryJournal) RecordAlarm(ctx context.Context, e interfaces.AlarmEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.alarms = append(j.alarms, e)
	return nil
}

func TestRunCycle_SeededPatientScenario(t *testing.T) {
	s := store.New(nil)
	s.AddPatient(store.SeedPatient())
	n := &countingNotifier{}
	j := &memoryJournal{}
	m := New(Config{Rand: fixedRand{}}, s, n, j, nil, nil)

	require.NoError(t, m.RunCycle(context.Background()))

	got, ok := s.GetPatient(2)
	require.True(t, ok)
	assert.Equal(t, "Jack", got.FamilyName)
	assert.True(t, got.Parameters[0].Alarm)
	assert.True(t, got.Parameters[1].Alarm)
	assert.True(t, got.Parameters[2].Alarm)

	assert.Equal(t, []string{types.EventPatientUpdate}, n.events)
	require.Len(t, j.alarms, 1)
	assert.Equal(t, interfaces.AlarmEvent{PatientID: 2, ParameterID: 0, Alarm: true, RecordedAt: j.alarms[0].RecordedAt}, j.alarms[0])
}

func TestRunCycle_PatientWithoutParametersUnchanged(t *testing.T) {
	s := store.New(nil)
	empty := s.AddPatient(types.Patient{FamilyName: "Doe", GivenName: "Jane", Sex: "F", BirthDate: types.NewDate(1980, time.January, 1)})
	n := &countingNotifier{}
	m := New(Config{}, s, n, nil, nil, nil)

	require.NoError(t, m.RunCycle(context.Background()))

	got, ok := s.GetPatient(empty.ID)
	require.True(t, ok)
	assert.Equal(t, empty, got)
	assert.Equal(t, 1, n.count(), "broadcast happens even when nothing changed")
}

func TestRunCycle_AtMostOneAlarmChangePerPatient(t *testing.T) {
	s := store.New(nil)
	for i := 0; i < 4; i++ {
		p := types.Patient{FamilyName: "P", GivenName: "Q", Sex: "M", BirthDate: types.NewDate(1970, time.March, 3)}
		for k := 0; k < 5; k++ {
			p.Parameters = append(p.Parameters, types.Parameter{Name: "param", Value: "1", Alarm: k%2 == 0})
		}
		s.AddPatient(p)
	}
	m := New(Config{Rand: seededRand{rand.New(rand.NewPCG(1, 2))}}, s, &countingNotifier{}, nil, nil, nil)

	for cycle := 0; cycle < 50; cycle++ {
		before := s.ListPatients()
		require.NoError(t, m.RunCycle(context.Background()))
		after := s.ListPatients()

		require.Len(t, after, len(before))
		for i := range before {
			changes := 0
			for k := range before[i].Parameters {
				b, a := before[i].Parameters[k], after[i].Parameters[k]
				assert.Equal(t, b.ID, a.ID)
				assert.Equal(t, b.Name, a.Name)
				assert.Equal(t, b.Value, a.Value)
				if b.Alarm != a.Alarm {
					changes++
				}
			}
			assert.LessOrEqual(t, changes, 1)

			before[i].Parameters, after[i].Parameters = nil, nil
			assert.Equal(t, before[i], after[i], "no other patient field is altered")
		}
	}
}

func TestRunCycle_StoreFailureIsFatal(t *testing.T) {
	s := store.New(nil)
	s.AddPatient(store.SeedPatient())
	s.Close()
	n := &countingNotifier{}
	m := New(Config{}, s, n, nil, nil, nil)

	err := m.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Zero(t, n.count())
}

func TestRun_FirstCycleImmediateAndCancellable(t *testing.T) {
	s := store.New(nil)
	s.AddPatient(store.SeedPatient())
	n := &countingNotifier{}
	core, logs := observer.New(zap.InfoLevel)
	m := New(Config{Period: time.Hour}, s, n, nil, nil, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return n.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, m.Running())
	assert.ErrorIs(t, m.Run(ctx), ErrMutatorRunning)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after cancellation")
	}

	assert.Equal(t, 1, logs.FilterMessage("alarm mutator stopped").Len())
	assert.ErrorIs(t, m.Run(context.Background()), ErrMutatorStopped)
	assert.False(t, m.Running())
}

func TestRun_BroadcastFailureDoesNotStopLoop(t *testing.T) {
	s := store.New(nil)
	s.AddPatient(store.SeedPatient())
	n := &countingNotifier{err: errors.New("hub is not running")}
	m := New(Config{Period: 5 * time.Millisecond}, s, n, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return n.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRun_StoreFailureLoggedDistinctly(t *testing.T) {
	s := store.New(nil)
	s.AddPatient(store.SeedPatient())
	n := &countingNotifier{}
	core, logs := observer.New(zap.InfoLevel)
	m := New(Config{Period: 5 * time.Millisecond}, s, n, nil, nil, zap.New(core))

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	require.Eventually(t, func() bool { return n.count() >= 1 }, time.Second, time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after the store failed")
	}

	failures := logs.FilterMessage("alarm mutator terminated: store failure")
	require.Equal(t, 1, failures.Len())
	assert.Equal(t, zap.ErrorLevel, failures.All()[0].Level)
	assert.Zero(t, logs.FilterMessage("alarm mutator stopped").Len())
}

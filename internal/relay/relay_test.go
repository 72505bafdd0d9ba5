package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"patientsync/internal/hub"
	"patientsync/internal/websocket"
	"patientsync/pkg/interfaces"
	"patientsync/pkg/types"
)

type caller string

func (c caller) Principal() string { return string(c) }

type send struct {
	principal string
	event     string
	args      []any
}

type recordingNotifier struct {
	mu    sync.Mutex
	sends []send
	err   error
}

func (n *recordingNotifier) BroadcastAll(ctx context.Context, event string, args ...any) error {
	return errors.New("not expected")
}

func (n *recordingNotifier) SendToPrincipal(ctx context.Context, principal, event string, args ...any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, send{principal, event, args})
	return n.err
}

type recordingJournal struct {
	interfaces.Journal
	relays []interfaces.RelayEvent
	err    error
}

func (j *recordingJournal) RecordRelay(ctx context.Context, e interfaces.RelayEvent) error {
	j.relays = append(j.relays, e)
	return j.err
}

func TestRelay_SendsToCallerPrincipal(t *testing.T) {
	n := &recordingNotifier{}
	j := &recordingJournal{}
	r := New(n, j, nil, nil)

	require.NoError(t, r.SyncOpenPatientDetail(context.Background(), caller("admin"), 2))

	require.Len(t, n.sends, 1)
	assert.Equal(t, send{"admin", types.EventOpenPatientDetail, []any{2}}, n.sends[0])
	require.Len(t, j.relays, 1)
	assert.Equal(t, "admin", j.relays[0].Principal)
	assert.Equal(t, 2, j.relays[0].PatientID)
}

func TestRelay_NoPrincipalIsIgnored(t *testing.T) {
	n := &recordingNotifier{}
	core, logs := observer.New(zap.WarnLevel)
	r := New(n, nil, nil, zap.New(core))

	assert.NoError(t, r.SyncOpenPatientDetail(context.Background(), caller(""), 2))
	assert.NoError(t, r.SyncOpenPatientDetail(context.Background(), nil, 2))

	assert.Empty(t, n.sends)
	assert.Equal(t, 2, logs.FilterMessage("open patient detail requested without a principal").Len())
}

func TestRelay_SendErrorIsReturned(t *testing.T) {
	sendErr := errors.New("hub is not running")
	n := &recordingNotifier{err: sendErr}
	j := &recordingJournal{}
	core, logs := observer.New(zap.ErrorLevel)
	r := New(n, j, nil, zap.New(core))

	err := r.SyncOpenPatientDetail(context.Background(), caller("admin"), 42)
	assert.ErrorIs(t, err, sendErr)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(42), entries[0].ContextMap()["patient_id"])
	assert.Empty(t, j.relays, "failed relays are not journaled")
}

func TestRelay_JournalErrorDoesNotFailRelay(t *testing.T) {
	n := &recordingNotifier{}
	j := &recordingJournal{err: errors.New("journal is closed")}
	r := New(n, j, nil, nil)

	assert.NoError(t, r.SyncOpenPatientDetail(context.Background(), caller("admin"), 2))
	assert.Len(t, n.sends, 1)
}

func TestRelay_UnknownPatientIsRelayedAsIs(t *testing.T) {
	n := &recordingNotifier{}
	r := New(n, nil, nil, nil)

	require.NoError(t, r.SyncOpenPatientDetail(context.Background(), caller("admin"), 9999))
	assert.Equal(t, []any{9999}, n.sends[0].args)
}

type tab struct {
	id        string
	principal string
	mu        sync.Mutex
	frames    int
}

func (t *tab) WriteJSON(v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames++
	return nil
}
func (t *tab) Close() error                { return nil }
func (t *tab) ID() string                  { return t.id }
func (t *tab) Principal() string           { return t.principal }
func (t *tab) IsAuthenticated() bool       { return true }
func (t *tab) SetPrincipal(p string) error { return nil }

func (t *tab) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

func TestRelay_ReachesBothTabsOfPrincipalOnly(t *testing.T) {
	registry := websocket.NewRegistry()
	h := hub.NewHub(registry, nil, nil)
	require.NoError(t, h.Start(context.Background()))
	defer func() { _ = h.Stop() }()

	tab1 := &tab{id: "1", principal: "admin"}
	tab2 := &tab{id: "2", principal: "admin"}
	other := &tab{id: "3", principal: "nurse"}
	for _, c := range []*tab{tab1, tab2, other} {
		require.NoError(t, registry.RegisterConnection(c))
	}

	r := New(h, nil, nil, nil)
	require.NoError(t, r.SyncOpenPatientDetail(context.Background(), tab1, 2))

	assert.Equal(t, 1, tab1.count(), "the calling tab also receives the event")
	assert.Equal(t, 1, tab2.count())
	assert.Equal(t, 0, other.count())
}

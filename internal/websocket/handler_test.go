package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"patientsync/pkg/interfaces"
	"patientsync/pkg/types"
)

type fakeSessions struct {
	tokens map[string]interfaces.Principal
}

func (f *fakeSessions) Issue(userID int, username string) (string, time.Time, error) {
	return "", time.Time{}, errors.New("not used")
}

func (f *fakeSessions) Validate(token string) (interfaces.Principal, error) {
	p, ok := f.tokens[token]
	if !ok {
		return interfaces.Principal{}, interfaces.ErrUnauthorized
	}
	return p, nil
}

func (f *fakeSessions) Revoke(token string) {}

type dispatchCall struct {
	principal string
	frame     types.Frame
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, caller interfaces.Caller, frame types.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{principal: caller.Principal(), frame: frame})
	return f.err
}

func (f *fakeDispatcher) snapshot() []dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatchCall(nil), f.calls...)
}

type handlerFixture struct {
	server     *httptest.Server
	registry   *Registry
	dispatcher *fakeDispatcher
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	sessions := &fakeSessions{tokens: map[string]interfaces.Principal{
		"admin-token": {UserID: 1, Username: "Admin"},
		"nurse-token": {UserID: 3, Username: "nurse"},
	}}
	f := &handlerFixture{registry: NewRegistry(), dispatcher: &fakeDispatcher{}}
	// Read pumps outlive the test body, so log into an observer rather than t.
	core, _ := observer.New(zap.DebugLevel)
	h := NewHandler(Config{}, f.registry, sessions, f.dispatcher, zap.New(core))

	f.server = httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(func() {
		f.registry.CloseAll()
		f.server.Close()
	})
	return f
}

func (f *handlerFixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", DefaultConfig().CookieName+"="+token)
	}
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func TestHandler_RejectsUnauthenticated(t *testing.T) {
	f := newHandlerFixture(t)

	for _, token := range []string{"", "forged"} {
		_, resp, err := f.dial(t, token)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Zero(t, f.registry.ActiveCount())
}

func TestHandler_RegistersEachTab(t *testing.T) {
	f := newHandlerFixture(t)

	_, _, err := f.dial(t, "admin-token")
	require.NoError(t, err)
	_, _, err = f.dial(t, "admin-token")
	require.NoError(t, err)
	_, _, err = f.dial(t, "nurse-token")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.registry.ActiveCount() == 3 }, time.Second, 10*time.Millisecond)
	assert.Len(t, f.registry.PrincipalConnections("1"), 2, "principal key is the user ID")
	assert.Len(t, f.registry.PrincipalConnections("3"), 1)
}

func TestHandler_UnregistersOnClientClose(t *testing.T) {
	f := newHandlerFixture(t)

	conn, _, err := f.dial(t, "admin-token")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.registry.ActiveCount() == 1 }, time.Second, 10*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return f.registry.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_InvocationGetsCompletion(t *testing.T) {
	f := newHandlerFixture(t)

	conn, _, err := f.dial(t, "admin-token")
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"invocation","invocationId":"1","target":"SyncOpenPatientDetail","arguments":[2]}`)))

	completion := readFrame(t, conn)
	assert.Equal(t, types.FrameTypeCompletion, completion.Type)
	assert.Equal(t, "1", completion.InvocationID)
	assert.Empty(t, completion.Error)

	calls := f.dispatcher.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "1", calls[0].principal)
	assert.Equal(t, types.TargetSyncOpenPatientDetail, calls[0].frame.Target)
	assert.JSONEq(t, "2", string(calls[0].frame.Arguments[0]))
}

func TestHandler_DispatchErrorInCompletion(t *testing.T) {
	f := newHandlerFixture(t)
	f.dispatcher.err = errors.New("unknown target")

	conn, _, err := f.dial(t, "nurse-token")
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"invocation","invocationId":"7","target":"Nope","arguments":[]}`)))

	completion := readFrame(t, conn)
	assert.Equal(t, "7", completion.InvocationID)
	assert.Equal(t, "unknown target", completion.Error)
	assert.Len(t, f.dispatcher.snapshot(), 1, "only invocations reach the dispatcher")
}

func readFrame(t *testing.T, conn *websocket.Conn) types.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame types.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

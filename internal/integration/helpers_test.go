package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"patientsync/internal/app"
	"patientsync/internal/config"
	"patientsync/pkg/types"
)

const cookieName = "PatientSyncAuthCookie"

type testServer struct {
	app    *app.Application
	base   string
	client *resty.Client
}

// startServer runs the whole application on a loopback port with a fast
// alarm period.
func startServer(t *testing.T, alarmPeriod time.Duration) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.Alarm.Period = alarmPeriod
	cfg.Auth.Secret = "integration-secret"

	// Connection goroutines may still log after the test returns, which
	// zaptest does not allow.
	application, err := app.NewApplication(cfg, zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, application.Serve(context.Background(), ln))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})

	base := "http://" + application.Addr()
	return &testServer{
		app:    application,
		base:   base,
		client: resty.New().SetBaseURL(base).SetTimeout(5 * time.Second),
	}
}

func (s *testServer) register(t *testing.T, username, password string) {
	t.Helper()
	resp, err := s.client.R().
		SetBody(types.AuthRequest{Username: username, Password: password}).
		Post("/authentication/register")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode(), resp.String())
}

// login returns the session cookie issued for the user.
func (s *testServer) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	resp, err := s.client.R().
		SetBody(types.AuthRequest{Username: username, Password: password}).
		Post("/authentication/login")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())

	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatal("login did not set the session cookie")
	return nil
}

// dial opens a hub connection. A nil cookie dials anonymously.
func (s *testServer) dial(cookie *http.Cookie) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if cookie != nil {
		header.Set("Cookie", cookie.Name+"="+cookie.Value)
	}
	url := "ws" + strings.TrimPrefix(s.base, "http") + "/patientHub"
	return websocket.DefaultDialer.Dial(url, header)
}

func (s *testServer) mustDial(t *testing.T, cookie *http.Cookie) *websocket.Conn {
	t.Helper()
	conn, _, err := s.dial(cookie)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// waitConnections blocks until the hub reports n open connections.
func (s *testServer) waitConnections(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := s.client.R().Get("/health")
		if err != nil {
			return false
		}
		var h struct {
			Connections map[string]int `json:"connections"`
		}
		return json.Unmarshal(resp.Body(), &h) == nil && h.Connections["total_connections"] == n
	}, 2*time.Second, 10*time.Millisecond)
}

// waitFor reads frames until match accepts one or the timeout passes. Frames
// that do not match are skipped.
func waitFor(conn *websocket.Conn, timeout time.Duration, match func(types.Frame) bool) (types.Frame, bool) {
	deadline := time.Now().Add(timeout)
	_ = conn.SetReadDeadline(deadline)
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return types.Frame{}, false
		}
		var frame types.Frame
		if json.Unmarshal(data, &frame) != nil {
			continue
		}
		if match(frame) {
			return frame, true
		}
	}
	return types.Frame{}, false
}

func isEvent(target string) func(types.Frame) bool {
	return func(f types.Frame) bool {
		return f.Type == types.FrameTypeEvent && f.Target == target
	}
}

func isCompletion(id string) func(types.Frame) bool {
	return func(f types.Frame) bool {
		return f.Type == types.FrameTypeCompletion && f.InvocationID == id
	}
}

func invoke(t *testing.T, conn *websocket.Conn, id, target string, args ...any) {
	t.Helper()
	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		require.NoError(t, err)
		raw[i] = data
	}
	require.NoError(t, conn.WriteJSON(types.Frame{
		Type:         types.FrameTypeInvocation,
		InvocationID: id,
		Target:       target,
		Arguments:    raw,
	}))
}

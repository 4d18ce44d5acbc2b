package presence

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookServer_Presence(t *testing.T) {
	s := NewWebhookServer("127.0.0.1", 0, true, 0)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	ctx := context.Background()

	resp, err := http.Post(srv.URL+"/presence", "text/plain", strings.NewReader("away"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, s.Present(ctx))

	resp, err = http.Post(srv.URL+"/presence", "application/json", strings.NewReader(`{"present":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, s.Present(ctx))

	resp, err = http.Get(srv.URL + "/presence")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["present"])
}

func TestWebhookServer_Rejects(t *testing.T) {
	s := NewWebhookServer("127.0.0.1", 0, true, 0)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/presence", "text/plain", strings.NewReader("perhaps"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, s.Present(context.Background()), "rejected payload keeps the previous value")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/presence", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebhookServer_ListenPortTaken(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	s := NewWebhookServer("127.0.0.1", port, true, 0)
	_, err = s.Listen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "presence webhook listen")

	err = s.Run(context.Background(), time.Second)
	assert.Error(t, err)
}

func TestWebhookServer_ServeUntilCancelled(t *testing.T) {
	s := NewWebhookServer("127.0.0.1", 0, false, 0)
	ln, err := s.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln, time.Second) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/presence", "text/plain", strings.NewReader("home"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, s.Present(context.Background()))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

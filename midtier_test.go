package midtier

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/voicekit/midtier-go/internal/websocket"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New()
	require.Error(t, err)

	_, err = New(WithEndpoint("https://example.net"), WithDeployment("rt"))
	require.Error(t, err) // no credential

	mt, err := New(
		WithEndpoint("https://example.net/"),
		WithDeployment("rt"),
		WithKey("k"),
	)
	require.NoError(t, err)
	assert.Equal(t,
		"wss://example.net/openai/realtime?api-version="+defaultAPIVersion+"&deployment=rt",
		mt.realtimeURL())
}

func TestTokenCacheRefreshesNearExpiry(t *testing.T) {
	calls := 0
	tc := NewTokenCache(func(ctx context.Context) (string, time.Time, error) {
		calls++
		if calls == 1 {
			// Already inside the refresh margin.
			return "t1", time.Now().Add(30 * time.Second), nil
		}
		return "t2", time.Now().Add(time.Hour), nil
	})

	tok, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", tok)

	tok, err = tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t2", tok)

	// Cached from here on.
	tok, err = tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t2", tok)
	assert.Equal(t, 2, calls)
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func dialTestClient(t *testing.T, ctx context.Context, url string) (*websocket.Conn, chan []byte) {
	t.Helper()
	client, err := websocket.Dial(ctx, websocket.Config{URL: url, DialTimeout: 5 * time.Second})
	require.NoError(t, err)

	frames := make(chan []byte, 10)
	go client.Serve(ctx, func(data []byte) error {
		frames <- data
		return nil
	}, nil)
	return client, frames
}

func waitFrame(t *testing.T, frames chan []byte) []byte {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// When the upstream connection cannot be established the client receives
// a single synthetic error event and the session ends.
func TestSessionUpstreamDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mt, err := New(
		WithEndpoint("http://127.0.0.1:1"),
		WithDeployment("rt"),
		WithKey("k"),
		WithLogger(slog.Default()),
	)
	require.NoError(t, err)

	relay := httptest.NewServer(http.HandlerFunc(mt.HandleWebSocket))
	defer relay.Close()

	client, frames := dialTestClient(t, ctx, wsURL(relay.URL))

	frame := waitFrame(t, frames)
	res := gjson.ParseBytes(frame)
	assert.Equal(t, "error", res.Get("type").String())
	assert.NotEmpty(t, res.Get("message").String())

	select {
	case <-client.Done():
	case <-ctx.Done():
		t.Fatal("expected session to end after dial failure")
	}
}

// End-to-end relay: the upstream's session.created is redacted on its way
// to the client, and the client's session.update is rewritten on its way
// upstream.
func TestSessionRelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	upstreamFrames := make(chan []byte, 10)
	gotAuth := make(chan string, 1)

	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("api-key")

		conn, err := websocket.Accept(w, r, websocket.Config{})
		if err != nil {
			t.Errorf("upstream accept failed: %v", err)
			return
		}
		conn.WriteText([]byte(`{"type":"session.created","session":{"id":"s1","instructions":"secret","tools":[{"name":"search"}],"voice":"echo"}}`))
		conn.Serve(ctx, func(data []byte) error {
			upstreamFrames <- data
			return nil
		}, nil)
	}))
	defer upstreamSrv.Close()

	mt, err := New(
		WithEndpoint(upstreamSrv.URL),
		WithDeployment("rt"),
		WithKey("test-key"),
		WithVoice("alloy"),
		WithSystemMessage("server prompt"),
	)
	require.NoError(t, err)

	relay := httptest.NewServer(http.HandlerFunc(mt.HandleWebSocket))
	defer relay.Close()

	client, clientFrames := dialTestClient(t, ctx, wsURL(relay.URL))
	defer client.Close(ctx)

	assert.Equal(t, "test-key", <-gotAuth)

	created := gjson.ParseBytes(waitFrame(t, clientFrames))
	assert.Equal(t, "session.created", created.Get("type").String())
	assert.Equal(t, "", created.Get("session.instructions").String())
	assert.Equal(t, "[]", created.Get("session.tools").Raw)
	assert.Equal(t, "alloy", created.Get("session.voice").String())

	client.WriteText([]byte(`{"type":"session.update","session":{"instructions":"client prompt"}}`))

	update := gjson.ParseBytes(waitFrame(t, upstreamFrames))
	assert.Equal(t, "session.update", update.Get("type").String())
	assert.Equal(t, "server prompt", update.Get("session.instructions").String())
	assert.Equal(t, "semantic_vad", update.Get("session.turn_detection.type").String())
}

// Closing the client side closes the upstream side.
func TestSessionMutualClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	upstreamDone := make(chan struct{})

	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, websocket.Config{})
		if err != nil {
			t.Errorf("upstream accept failed: %v", err)
			return
		}
		conn.Serve(ctx, nil, nil)
		close(upstreamDone)
	}))
	defer upstreamSrv.Close()

	mt, err := New(
		WithEndpoint(upstreamSrv.URL),
		WithDeployment("rt"),
		WithKey("k"),
	)
	require.NoError(t, err)

	relay := httptest.NewServer(http.HandlerFunc(mt.HandleWebSocket))
	defer relay.Close()

	client, _ := dialTestClient(t, ctx, wsURL(relay.URL))
	require.NoError(t, client.Close(ctx))

	select {
	case <-upstreamDone:
	case <-ctx.Done():
		t.Fatal("upstream connection was not closed after client disconnect")
	}
}

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/buildchat/auth"
)

type closeEvent struct {
	code   int
	reason string
}

type recorder struct {
	mu     sync.Mutex
	opened int
	frames int
	errs   []error

	frameCh chan string
	closeCh chan closeEvent
}

func newRecorder() *recorder {
	return &recorder{
		frameCh: make(chan string, 256),
		closeCh: make(chan closeEvent, 4),
	}
}

func (r *recorder) OnOpen() {
	r.mu.Lock()
	r.opened++
	r.mu.Unlock()
}

func (r *recorder) OnFrame(data []byte) {
	r.mu.Lock()
	r.frames++
	r.mu.Unlock()
	select {
	case r.frameCh <- string(data):
	default:
	}
}

func (r *recorder) OnClose(code int, reason string) {
	r.closeCh <- closeEvent{code, reason}
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/session/42"
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/session/7"},
		{"https://builder.example/", "wss://builder.example/session/7"},
		{"https://builder.example/api/", "wss://builder.example/api/session/7"},
	}
	for _, tt := range tests {
		got, err := Endpoint(tt.base, "/session", "7")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := Endpoint("ftp://x", "/session", "7")
	assert.Error(t, err)
}

func TestConnect_MissingTokenDoesNotDial(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	tr := New(Config{URL: wsURL(srv), Tokens: auth.Static("")}, newRecorder())
	err := tr.Connect(context.Background())

	require.ErrorIs(t, err, ErrAuthenticationMissing)
	assert.Zero(t, hits.Load())
	assert.Equal(t, StateClosed, tr.State())
	tr.Disconnect()
}

func TestSend_NotConnected(t *testing.T) {
	tr := New(Config{URL: "ws://127.0.0.1:1/session/1", Tokens: auth.Static("t")}, newRecorder())
	assert.ErrorIs(t, tr.Send(map[string]string{"role": "user"}), ErrNotConnected)

	tr.Disconnect()
	assert.ErrorIs(t, tr.Send(map[string]string{"role": "user"}), ErrNotConnected)
}

func TestConnect_RoundTrip(t *testing.T) {
	gotToken := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken <- r.URL.Query().Get("token")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		c.Write(ctx, websocket.MessageText, []byte(`{"for_type":"status","sandbox_status":"READY"}`))
		_, msg, err := c.Read(ctx)
		if err != nil {
			return
		}
		c.Write(ctx, websocket.MessageText, msg)
		c.Read(ctx)
	}))
	defer srv.Close()

	rec := newRecorder()
	tr := New(Config{URL: wsURL(srv), Tokens: auth.Static("secret")}, rec)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	assert.Equal(t, "secret", <-gotToken)
	assert.Equal(t, StateOpen, tr.State())
	assert.JSONEq(t, `{"for_type":"status","sandbox_status":"READY"}`, <-rec.frameCh)

	require.NoError(t, tr.Send(map[string]any{"role": "user", "content": "hi", "images": []string{}}))
	assert.JSONEq(t, `{"role":"user","content":"hi","images":[]}`, <-rec.frameCh)

	rec.mu.Lock()
	assert.Equal(t, 1, rec.opened)
	rec.mu.Unlock()

	assert.ErrorIs(t, tr.Connect(context.Background()), ErrAlreadyConnected)
}

func TestConnect_CloseCodePropagated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c.Close(websocket.StatusCode(4001), "unauthorized")
	}))
	defer srv.Close()

	rec := newRecorder()
	tr := New(Config{URL: wsURL(srv), Tokens: auth.Static("bad")}, rec)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	select {
	case ev := <-rec.closeCh:
		assert.Equal(t, 4001, ev.code)
		assert.Equal(t, "unauthorized", ev.reason)
	case <-time.After(2 * time.Second):
		t.Fatal("close not delivered")
	}
	assert.ErrorIs(t, tr.Send("x"), ErrNotConnected)
}

func TestConnect_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	rec := newRecorder()
	tr := New(Config{URL: wsURL(srv), Tokens: auth.Static("t"), OpenTimeout: 100 * time.Millisecond}, rec)

	start := time.Now()
	err := tr.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	rec.mu.Lock()
	assert.Len(t, rec.errs, 1)
	rec.mu.Unlock()
	tr.Disconnect()
}

func TestConnect_TimeoutCoversTokenLookup(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	hanging := auth.TokenFunc(func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	rec := newRecorder()
	tr := New(Config{URL: wsURL(srv), Tokens: hanging, OpenTimeout: 100 * time.Millisecond}, rec)

	start := time.Now()
	err := tr.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, hits.Load())
	assert.Equal(t, StateClosed, tr.State())

	rec.mu.Lock()
	assert.Len(t, rec.errs, 1)
	rec.mu.Unlock()
	tr.Disconnect()
}

func TestDisconnect_NoEventsAfterReturn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		for {
			if err := c.Write(r.Context(), websocket.MessageText, []byte(`{"for_type":"chat_chunk","content":"x"}`)); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer srv.Close()

	rec := newRecorder()
	tr := New(Config{URL: wsURL(srv), Tokens: auth.Static("t")}, rec)
	require.NoError(t, tr.Connect(context.Background()))

	require.Eventually(t, func() bool { return rec.frameCount() > 2 }, 2*time.Second, 5*time.Millisecond)

	tr.Disconnect()
	tr.Disconnect()
	after := rec.frameCount()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, rec.frameCount())
	assert.Empty(t, rec.closeCh, "close is not reported after a local disconnect")
	assert.Equal(t, StateClosed, tr.State())
}

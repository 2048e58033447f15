package api

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/buildchat/apiclient"
	"github.com/xiaoyuanzhu-com/buildchat/auth"
	"github.com/xiaoyuanzhu-com/buildchat/server"
	"github.com/xiaoyuanzhu-com/buildchat/session"
	"github.com/xiaoyuanzhu-com/buildchat/transport"
	"github.com/xiaoyuanzhu-com/buildchat/vendors"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, credits int) *httptest.Server {
	t.Helper()
	srv, err := server.New(&server.Config{
		Env:             "production",
		DatabasePath:    filepath.Join(t.TempDir(), "buildchat.sqlite"),
		JWTSecret:       testSecret,
		TokenTTL:        time.Hour,
		BuildDelay:      10 * time.Millisecond,
		StartingCredits: credits,
	}, server.WithAssistant(&vendors.EchoAssistant{}))
	require.NoError(t, err)

	SetupRoutes(srv.Router(), NewHandlers(srv))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})
	return ts
}

func login(t *testing.T, baseURL, username string) *apiclient.Client {
	t.Helper()
	tok, err := apiclient.New(baseURL).IssueToken(context.Background(), username)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)
	return apiclient.New(baseURL, apiclient.WithTokens(auth.Static(tok.Token)))
}

func socketURL(t *testing.T, baseURL, chatID, token string) string {
	t.Helper()
	u, err := transport.Endpoint(baseURL, server.SocketPrefix, chatID)
	require.NoError(t, err)
	return u + "?token=" + token
}

func TestToken_RoundTrip(t *testing.T) {
	now := time.Now()
	tok, exp, err := signToken("s", "ada", now, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), exp, time.Second)

	user, err := verifyToken("s", tok)
	require.NoError(t, err)
	assert.Equal(t, "ada", user)

	_, err = verifyToken("other", tok)
	assert.Error(t, err)

	expired, _, err := signToken("s", "ada", now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	_, err = verifyToken("s", expired)
	assert.Error(t, err)
}

func TestChats_CreateGetAndCredits(t *testing.T) {
	ts := newTestServer(t, 1)
	client := login(t, ts.URL, "ada")
	ctx := context.Background()

	id, err := client.CreateSession(ctx, session.UserMessage("build a recipe site"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	chat, err := client.GetChat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "build a recipe site", chat.Name)
	assert.Empty(t, chat.Messages)
	assert.Equal(t, string(session.StatusOffline), chat.SandboxStatus)

	_, err = client.CreateSession(ctx, session.UserMessage("another"))
	assert.ErrorIs(t, err, apiclient.ErrPaymentRequired)

	_, err = login(t, ts.URL, "bob").GetChat(ctx, id)
	assert.ErrorIs(t, err, apiclient.ErrNotFound)
}

func TestChats_RequireToken(t *testing.T) {
	ts := newTestServer(t, 1)

	_, err := apiclient.New(ts.URL).CreateSession(context.Background(), session.UserMessage("x"))
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)

	_, err = apiclient.New(ts.URL, apiclient.WithTokens(auth.Static("garbage"))).GetChat(context.Background(), "1")
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
}

func TestSessionSocket_CloseCodes(t *testing.T) {
	ts := newTestServer(t, 5)
	ctx := context.Background()

	id, err := login(t, ts.URL, "ada").CreateSession(ctx, session.UserMessage("a blog"))
	require.NoError(t, err)
	adaToken, _, err := signToken(testSecret, "ada", time.Now(), time.Hour)
	require.NoError(t, err)
	bobToken, _, err := signToken(testSecret, "bob", time.Now(), time.Hour)
	require.NoError(t, err)

	closeCode := func(url string, send []byte) websocket.StatusCode {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		conn, _, err := websocket.Dial(ctx, url, nil)
		require.NoError(t, err)
		defer conn.CloseNow()
		if send != nil {
			require.NoError(t, conn.Write(ctx, websocket.MessageText, send))
		}
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return websocket.CloseStatus(err)
			}
		}
	}

	assert.Equal(t, CloseUnauthorized, closeCode(socketURL(t, ts.URL, id, "bad"), nil))
	assert.Equal(t, CloseForbidden, closeCode(socketURL(t, ts.URL, id, bobToken), nil))
	assert.Equal(t, CloseUnknownSession, closeCode(socketURL(t, ts.URL, "999", adaToken), nil))
	assert.Equal(t, websocket.StatusUnsupportedData, closeCode(socketURL(t, ts.URL, id, adaToken), []byte("not json")))
}

func TestSessionSocket_BuildThenReady(t *testing.T) {
	ts := newTestServer(t, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := login(t, ts.URL, "ada").CreateSession(ctx, session.UserMessage("a blog"))
	require.NoError(t, err)
	token, _, err := signToken(testSecret, "ada", time.Now(), time.Hour)
	require.NoError(t, err)

	conn, _, err := websocket.Dial(ctx, socketURL(t, ts.URL, id, token), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var statuses []session.Status
	for len(statuses) < 2 {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		ev, err := session.Decode(data)
		require.NoError(t, err)
		sc, ok := ev.(session.StatusChanged)
		require.True(t, ok)
		statuses = append(statuses, sc.Status)
		if sc.Status == session.StatusReady {
			assert.Contains(t, sc.Tunnels, session.PreviewPort)
			assert.NotEmpty(t, sc.FilePaths)
		}
	}
	assert.Equal(t, []session.Status{session.StatusBuilding, session.StatusReady}, statuses)
}

func TestEndToEnd_NewSessionThroughReply(t *testing.T) {
	ts := newTestServer(t, 5)
	client := login(t, ts.URL, "ada")

	tokens := auth.TokenFunc(func(context.Context) (string, error) {
		tok, _, err := signToken(testSecret, "ada", time.Now(), time.Hour)
		return tok, err
	})
	w := session.NewWorkspace(session.Options{
		Dial:         session.TransportDialer(ts.URL, server.SocketPrefix, tokens, 2*time.Second),
		Collaborator: client,
	})
	defer w.Close()

	switches, unsubscribe := w.Switches()
	defer unsubscribe()

	first, err := w.Open(session.NewSessionID, nil)
	require.NoError(t, err)
	<-switches

	require.NoError(t, first.Submit(context.Background(), session.UserMessage("build a blog")))

	var s *session.Session
	select {
	case s = <-switches:
	case <-time.After(3 * time.Second):
		t.Fatal("workspace did not switch to the created session")
	}
	assert.NotEqual(t, session.NewSessionID, s.ID())

	var st session.State
	require.Eventually(t, func() bool {
		st = s.Snapshot()
		return st.Status == session.StatusReady && len(st.Transcript) == 2 && st.Transcript[1].Persisted()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, session.RoleUser, st.Transcript[0].Role)
	assert.Equal(t, "build a blog", st.Transcript[0].Content)
	assert.True(t, st.Transcript[0].Persisted())
	assert.Equal(t, "Working on it: build a blog", st.Transcript[1].Content)
	assert.Len(t, st.SuggestedFollowUps, 3)
	assert.NotEmpty(t, st.PreviewEndpoint)
	assert.NotEmpty(t, st.FileTreePaths)

	chat, err := client.GetChat(context.Background(), s.ID())
	require.NoError(t, err)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, st.Transcript[1].ID, chat.Messages[1].ID)
}

package session

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Status(t *testing.T) {
	ev, err := Decode([]byte(`{"for_type":"status","sandbox_status":"BUILDING_WAITING","tunnels":{"3000":"https://p"},"file_paths":["/a","/b"]}`))
	require.NoError(t, err)

	st, ok := ev.(StatusChanged)
	require.True(t, ok)
	assert.Equal(t, StatusBuilding, st.Status)
	assert.Equal(t, map[int]string{3000: "https://p"}, st.Tunnels)
	assert.Equal(t, []string{"/a", "/b"}, st.FilePaths)
}

func TestDecode_StatusSkipsBadTunnels(t *testing.T) {
	ev, err := Decode([]byte(`{"for_type":"status","sandbox_status":"READY","tunnels":{"web":"x","3000":"https://p","8080":7}}`))
	require.NoError(t, err)

	st, ok := ev.(StatusChanged)
	require.True(t, ok)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, map[int]string{3000: "https://p"}, st.Tunnels)

	ev, err = Decode([]byte(`{"for_type":"status","sandbox_status":"READY"}`))
	require.NoError(t, err)
	assert.Nil(t, ev.(StatusChanged).Tunnels)
}

func TestDecode_ChatUpdate(t *testing.T) {
	ev, err := Decode([]byte(`{"for_type":"chat_update","message":{"id":17,"role":"assistant","content":"done","images":["https://i/1.png"]},"follow_ups":["next"],"navigate_to":"/pricing"}`))
	require.NoError(t, err)

	up, ok := ev.(ChatUpdated)
	require.True(t, ok)
	assert.Equal(t, Message{ID: "17", Role: RoleAssistant, Content: "done", Images: []string{"https://i/1.png"}}, up.Message)
	assert.Equal(t, []string{"next"}, up.FollowUps)
	assert.Equal(t, "/pricing", up.NavigateTo)
}

func TestDecode_ChatChunk(t *testing.T) {
	ev, err := Decode([]byte(`{"for_type":"chat_chunk","content":"a","thinking_content":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, ChatChunk{Content: "a", ThinkingContent: "b"}, ev)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"empty", ``},
		{"not json", `hello`},
		{"missing tag", `{"sandbox_status":"READY"}`},
		{"unknown tag", `{"for_type":"telemetry"}`},
		{"unknown status", `{"for_type":"status","sandbox_status":"EXPLODED"}`},
		{"update without message", `{"for_type":"chat_update"}`},
		{"update without id", `{"for_type":"chat_update","message":{"role":"assistant","content":"x"}}`},
		{"update with bad role", `{"for_type":"chat_update","message":{"id":"1","role":"system","content":"x"}}`},
		{"chunk with wrong type", `{"for_type":"chat_chunk","content":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.frame))
			assert.Nil(t, ev)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedFrame)

			var mf *MalformedFrameError
			assert.True(t, errors.As(err, &mf))
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("ready")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, st)

	st, err = ParseStatus("NEW_CHAT")
	require.NoError(t, err)
	assert.Equal(t, StatusNew, st)

	_, err = ParseStatus("Setting up (~3m)")
	assert.Error(t, err, "display strings are not statuses")
}

func TestStatus_SendGate(t *testing.T) {
	all := []Status{StatusNew, StatusDisconnected, StatusConnecting, StatusBuilding,
		StatusReady, StatusWorking, StatusWorkingApplying, StatusOffline}

	for _, st := range all {
		allowed := st == StatusNew || st == StatusReady
		assert.Equal(t, allowed, st.CanSend(), st)
		assert.Equal(t, allowed, st.Reason() == "", st)
		assert.NotEmpty(t, st.Label(), st)
	}
	assert.Equal(t, "Please wait for the AI to finish...", StatusWorking.Reason())
	assert.Equal(t, "Coding...", StatusWorking.Label())
}

func TestOutboundMessage_WireShape(t *testing.T) {
	data, err := json.Marshal(UserMessage("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi","images":[]}`, string(data))
}

func TestDeferred_RoundTrip(t *testing.T) {
	q, err := EncodeDeferred(UserMessage("build me a blog", "https://i/1.png"))
	require.NoError(t, err)

	nav := Navigation{SessionID: "42", Query: q}
	assert.Contains(t, nav.Path(), "/chats/42?message=")

	msg, err := nav.Deferred()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, UserMessage("build me a blog", "https://i/1.png"), *msg)

	msg, err = DecodeDeferred(nil)
	assert.NoError(t, err)
	assert.Nil(t, msg)

	_, err = DecodeDeferred(map[string][]string{DeferredParam: {"{"}})
	assert.Error(t, err)
}

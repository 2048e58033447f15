package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, credits int) *DB {
	t.Helper()
	d, err := Open(Config{
		Path:            filepath.Join(t.TempDir(), "nested", "buildchat.db"),
		StartingCredits: credits,
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpen_RunsMigrations(t *testing.T) {
	d := openTestDB(t, 1)
	v, err := d.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestOpen_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildchat.db")
	d, err := Open(Config{Path: path})
	require.NoError(t, err)
	_, err = d.conn.Exec("INSERT INTO schema_version (version, applied_at, description) VALUES (99, ?, 'future')", NowMs())
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = Open(Config{Path: path})
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestCreateChat_ChargesCredits(t *testing.T) {
	d := openTestDB(t, 1)

	chat, err := d.CreateChat("ada", "Blog", "build a blog")
	require.NoError(t, err)
	assert.NotZero(t, chat.ID)

	acc, err := d.GetAccount("ada")
	require.NoError(t, err)
	assert.Equal(t, 0, acc.Credits)

	_, err = d.CreateChat("ada", "Shop", "build a shop")
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	other, err := d.CreateChat("bob", "Shop", "build a shop")
	require.NoError(t, err)
	assert.NotEqual(t, chat.ID, other.ID)
}

func TestCreateChat_KeepsSeedPromptOnly(t *testing.T) {
	d := openTestDB(t, 5)

	chat, err := d.CreateChat("ada", "Blog", "build a blog")
	require.NoError(t, err)

	got, err := d.GetChat(chat.ID, "ada")
	require.NoError(t, err)
	assert.Equal(t, "build a blog", got.SeedPrompt)

	msgs, err := d.ListMessages(chat.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGetChat_ChecksOwner(t *testing.T) {
	d := openTestDB(t, 5)
	chat, err := d.CreateChat("ada", "Blog", "")
	require.NoError(t, err)

	got, err := d.GetChat(chat.ID, "ada")
	require.NoError(t, err)
	assert.Equal(t, "Blog", got.Name)

	_, err = d.GetChat(chat.ID, "bob")
	assert.ErrorIs(t, err, ErrChatForbidden)
	_, err = d.GetChat(chat.ID+100, "ada")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestMessages_OrderAndRename(t *testing.T) {
	d := openTestDB(t, 5)
	chat, err := d.CreateChat("ada", "Blog", "")
	require.NoError(t, err)

	first, err := d.InsertMessage(&Message{ChatID: chat.ID, Role: "user", Content: "hi", CreatedAt: 10})
	require.NoError(t, err)
	_, err = d.InsertMessage(&Message{ChatID: chat.ID, Role: "assistant", Content: "hello", ThinkingContent: "hmm", CreatedAt: 20})
	require.NoError(t, err)
	_, err = d.InsertMessage(&Message{ChatID: chat.ID, Role: "user", Content: "with image", Images: []string{"data:image/png;base64,AA=="}, CreatedAt: 30})
	require.NoError(t, err)

	msgs, err := d.ListMessages(chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, "hmm", msgs[1].ThinkingContent)
	assert.Equal(t, []string{}, msgs[1].Images)
	assert.Equal(t, []string{"data:image/png;base64,AA=="}, msgs[2].Images)

	require.NoError(t, d.RenameChat(chat.ID, "My Blog"))
	got, err := d.GetChat(chat.ID, "ada")
	require.NoError(t, err)
	assert.Equal(t, "My Blog", got.Name)
	assert.ErrorIs(t, d.RenameChat(9999, "x"), ErrChatNotFound)
}

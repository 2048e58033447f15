package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientCredits is returned when an account cannot pay for a new chat
	ErrInsufficientCredits = errors.New("not enough credits")

	// ErrChatNotFound is returned for unknown chats
	ErrChatNotFound = errors.New("chat not found")

	// ErrChatForbidden is returned for chats owned by another account
	ErrChatForbidden = errors.New("chat belongs to another account")
)

// GetAccount returns the account for username, creating it with the
// starting credits on first use
func (d *DB) GetAccount(username string) (*Account, error) {
	var acc *Account
	err := d.Transaction(func(tx *sql.Tx) error {
		var err error
		acc, err = d.ensureAccount(tx, username)
		return err
	})
	return acc, err
}

func (d *DB) ensureAccount(tx *sql.Tx, username string) (*Account, error) {
	const insert = `INSERT INTO accounts (username, credits, created_at) VALUES (?, ?, ?) ON CONFLICT(username) DO NOTHING`
	d.logQuery("exec", insert, username, d.cfg.StartingCredits)
	if _, err := tx.Exec(insert, username, d.cfg.StartingCredits, NowMs()); err != nil {
		return nil, err
	}

	acc := &Account{}
	err := tx.QueryRow(
		`SELECT username, credits, created_at FROM accounts WHERE username = ?`, username,
	).Scan(&acc.Username, &acc.Credits, &acc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// CreateChat charges one credit and creates an empty chat. The seed prompt is
// kept for reference; the first message arrives over the session socket.
func (d *DB) CreateChat(owner, name, seedPrompt string) (*Chat, error) {
	chat := &Chat{Owner: owner, Name: name, SeedPrompt: seedPrompt}

	err := d.Transaction(func(tx *sql.Tx) error {
		acc, err := d.ensureAccount(tx, owner)
		if err != nil {
			return err
		}
		if acc.Credits <= 0 {
			return ErrInsufficientCredits
		}
		if _, err := tx.Exec(`UPDATE accounts SET credits = credits - 1 WHERE username = ?`, owner); err != nil {
			return err
		}

		now := NowMs()
		const insert = `INSERT INTO chats (owner, name, seed_prompt, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
		d.logQuery("exec", insert, owner, name)
		res, err := tx.Exec(insert, owner, name, seedPrompt, now, now)
		if err != nil {
			return err
		}
		chat.ID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		chat.CreatedAt = now
		chat.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat returns the chat with the given id if owner may see it
func (d *DB) GetChat(id int64, owner string) (*Chat, error) {
	const query = `SELECT id, owner, name, seed_prompt, created_at, updated_at FROM chats WHERE id = ?`
	d.logQuery("query", query, id)

	c := &Chat{}
	err := d.conn.QueryRow(query, id).Scan(&c.ID, &c.Owner, &c.Name, &c.SeedPrompt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Owner != owner {
		return nil, ErrChatForbidden
	}
	return c, nil
}

// RenameChat updates the chat name
func (d *DB) RenameChat(id int64, name string) error {
	res, err := d.conn.Exec(`UPDATE chats SET name = ?, updated_at = ? WHERE id = ?`, name, NowMs(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// ListMessages returns the transcript of a chat, oldest first
func (d *DB) ListMessages(chatID int64) ([]Message, error) {
	const query = `
		SELECT id, chat_id, role, content, thinking_content, images, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at, rowid`
	d.logQuery("query", query, chatID)

	rows, err := d.conn.Query(query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		var images string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.ThinkingContent, &images, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(images), &m.Images); err != nil {
			return nil, fmt.Errorf("message %s images: %w", m.ID, err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// InsertMessage persists a message, assigning an id when empty
func (d *DB) InsertMessage(m *Message) (*Message, error) {
	var out *Message
	err := d.Transaction(func(tx *sql.Tx) error {
		var err error
		out, err = insertMessage(tx, m)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE chats SET updated_at = ? WHERE id = ?`, out.CreatedAt, out.ChatID)
		return err
	})
	return out, err
}

func insertMessage(tx *sql.Tx, m *Message) (*Message, error) {
	out := *m
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt == 0 {
		out.CreatedAt = NowMs()
	}
	if out.Images == nil {
		out.Images = []string{}
	}
	images, err := json.Marshal(out.Images)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO messages (id, chat_id, role, content, thinking_content, images, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, out.ID, out.ChatID, out.Role, out.Content, out.ThinkingContent, string(images), out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &out, nil
}

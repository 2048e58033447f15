package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Role is the author of a transcript entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// MessageID is the server-assigned id of a persisted message. The build
// service sends either strings or integers; both decode to the same form.
type MessageID string

// UnmarshalJSON accepts a JSON string, number or null
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = MessageID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = MessageID(n.String())
	return nil
}

// Message is one transcript turn
type Message struct {
	ID              MessageID `json:"id,omitempty"`
	LocalID         string    `json:"-"`
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	ThinkingContent string    `json:"thinking_content,omitempty"`
	Images          []string  `json:"images,omitempty"`
}

// Persisted reports whether the build service has assigned an id
func (m Message) Persisted() bool {
	return m.ID != ""
}

// streaming reports whether m is an assistant turn still receiving chunks
func (m Message) streaming() bool {
	return m.Role == RoleAssistant && m.ID == ""
}

func (m Message) clone() Message {
	m.Images = slices.Clone(m.Images)
	return m
}

// OutboundMessage is the frame sent for a user turn
type OutboundMessage struct {
	Role    Role     `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

// UserMessage builds an outbound user message; images may be nil
func UserMessage(content string, images ...string) OutboundMessage {
	if images == nil {
		images = []string{}
	}
	return OutboundMessage{Role: RoleUser, Content: content, Images: images}
}

func (m OutboundMessage) empty() bool {
	return m.Content == "" && len(m.Images) == 0
}

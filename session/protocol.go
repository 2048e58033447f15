package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Frame discriminants carried in the for_type field
const (
	ForStatus     = "status"
	ForChatUpdate = "chat_update"
	ForChatChunk  = "chat_chunk"
)

// ErrMalformedFrame is matched by every decode failure
var ErrMalformedFrame = errors.New("malformed frame")

// MalformedFrameError describes a frame that could not be decoded
type MalformedFrameError struct {
	Message string
	Data    []byte
	Cause   error
}

func (e *MalformedFrameError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed frame: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed frame: %s", e.Message)
}

func (e *MalformedFrameError) Unwrap() error {
	return e.Cause
}

func (e *MalformedFrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

// StatusFrame is the wire form of a status update
type StatusFrame struct {
	ForType       string         `json:"for_type"`
	SandboxStatus string         `json:"sandbox_status"`
	Tunnels       map[int]string `json:"tunnels,omitempty"`
	FilePaths     []string       `json:"file_paths,omitempty"`
}

// ChatUpdateFrame is the wire form of a finalized message
type ChatUpdateFrame struct {
	ForType    string   `json:"for_type"`
	Message    Message  `json:"message"`
	FollowUps  []string `json:"follow_ups,omitempty"`
	NavigateTo string   `json:"navigate_to,omitempty"`
}

// ChatChunkFrame is the wire form of a streamed fragment
type ChatChunkFrame struct {
	ForType         string `json:"for_type"`
	Content         string `json:"content,omitempty"`
	ThinkingContent string `json:"thinking_content,omitempty"`
}

// Decode parses one inbound text frame into a typed event
func Decode(data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, &MalformedFrameError{Message: "empty frame", Data: data}
	}

	var base struct {
		ForType string `json:"for_type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, &MalformedFrameError{Message: "invalid json", Data: data, Cause: err}
	}

	switch base.ForType {
	case ForStatus:
		return decodeStatus(data)
	case ForChatUpdate:
		return decodeChatUpdate(data)
	case ForChatChunk:
		return decodeChatChunk(data)
	case "":
		return nil, &MalformedFrameError{Message: "missing for_type", Data: data}
	default:
		return nil, &MalformedFrameError{Message: fmt.Sprintf("unknown for_type %q", base.ForType), Data: data}
	}
}

func decodeStatus(data []byte) (Event, error) {
	var f struct {
		SandboxStatus string                     `json:"sandbox_status"`
		Tunnels       map[string]json.RawMessage `json:"tunnels"`
		FilePaths     []string                   `json:"file_paths"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &MalformedFrameError{Message: "invalid status frame", Data: data, Cause: err}
	}
	st, err := ParseStatus(f.SandboxStatus)
	if err != nil {
		return nil, &MalformedFrameError{Message: "invalid sandbox_status", Data: data, Cause: err}
	}
	return StatusChanged{Status: st, Tunnels: decodeTunnels(f.Tunnels), FilePaths: f.FilePaths}, nil
}

// decodeTunnels keeps the entries with a numeric port and a string URL
func decodeTunnels(raw map[string]json.RawMessage) map[int]string {
	if raw == nil {
		return nil
	}
	tunnels := make(map[int]string, len(raw))
	for k, v := range raw {
		port, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		var endpoint string
		if err := json.Unmarshal(v, &endpoint); err != nil {
			continue
		}
		tunnels[port] = endpoint
	}
	return tunnels
}

func decodeChatUpdate(data []byte) (Event, error) {
	var f struct {
		Message    *Message `json:"message"`
		FollowUps  []string `json:"follow_ups"`
		NavigateTo string   `json:"navigate_to"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &MalformedFrameError{Message: "invalid chat_update frame", Data: data, Cause: err}
	}
	if f.Message == nil {
		return nil, &MalformedFrameError{Message: "chat_update without message", Data: data}
	}
	if f.Message.ID == "" {
		return nil, &MalformedFrameError{Message: "chat_update message without id", Data: data}
	}
	if !f.Message.Role.valid() {
		return nil, &MalformedFrameError{Message: fmt.Sprintf("invalid role %q", f.Message.Role), Data: data}
	}
	return ChatUpdated{Message: *f.Message, FollowUps: f.FollowUps, NavigateTo: f.NavigateTo}, nil
}

func decodeChatChunk(data []byte) (Event, error) {
	var f ChatChunkFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &MalformedFrameError{Message: "invalid chat_chunk frame", Data: data, Cause: err}
	}
	return ChatChunk{Content: f.Content, ThinkingContent: f.ThinkingContent}, nil
}

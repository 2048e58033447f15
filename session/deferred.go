package session

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// DeferredParam is the navigation query parameter carrying the first message
// of a freshly created session
const DeferredParam = "message"

// Navigation asks the host to open another session
type Navigation struct {
	SessionID string
	Query     url.Values
}

// Path renders the navigation as the path the web client would route to
func (n Navigation) Path() string {
	p := "/chats/" + url.PathEscape(n.SessionID)
	if len(n.Query) > 0 {
		p += "?" + n.Query.Encode()
	}
	return p
}

// Deferred returns the message carried by the navigation, if any
func (n Navigation) Deferred() (*OutboundMessage, error) {
	return DecodeDeferred(n.Query)
}

// EncodeDeferred stores msg in a query for the session that will deliver it
func EncodeDeferred(msg OutboundMessage) (url.Values, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode deferred message: %w", err)
	}
	return url.Values{DeferredParam: {string(data)}}, nil
}

// DecodeDeferred extracts the deferred message; nil when the query has none
func DecodeDeferred(q url.Values) (*OutboundMessage, error) {
	raw := q.Get(DeferredParam)
	if raw == "" {
		return nil, nil
	}
	var msg OutboundMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decode deferred message: %w", err)
	}
	if msg.Role == "" {
		msg.Role = RoleUser
	}
	if msg.Images == nil {
		msg.Images = []string{}
	}
	if msg.empty() {
		return nil, nil
	}
	return &msg, nil
}

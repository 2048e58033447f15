package session

import (
	"time"

	"github.com/xiaoyuanzhu-com/buildchat/auth"
	"github.com/xiaoyuanzhu-com/buildchat/transport"
)

// TransportDialer returns a Dialer that opens websocket transports against
// the build service at baseURL
func TransportDialer(baseURL, socketPath string, tokens auth.TokenProvider, openTimeout time.Duration) Dialer {
	return func(sessionID string, h transport.Handler) (Conn, error) {
		endpoint, err := transport.Endpoint(baseURL, socketPath, sessionID)
		if err != nil {
			return nil, err
		}
		return transport.New(transport.Config{
			URL:         endpoint,
			Tokens:      tokens,
			OpenTimeout: openTimeout,
		}, h), nil
	}
}

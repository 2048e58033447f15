// Package auth supplies the bearer token the session transport and the API
// client authenticate with.
package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrNoToken is returned when no token is available locally
var ErrNoToken = errors.New("no authentication token available")

// TokenProvider returns the current auth token
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static returns a provider for a fixed token. An empty token yields ErrNoToken.
func Static(token string) TokenProvider {
	token = strings.TrimSpace(token)
	return TokenFunc(func(context.Context) (string, error) {
		if token == "" {
			return "", ErrNoToken
		}
		return token, nil
	})
}

// First tries each provider in order and returns the first token found
func First(providers ...TokenProvider) TokenProvider {
	return TokenFunc(func(ctx context.Context) (string, error) {
		for _, p := range providers {
			if p == nil {
				continue
			}
			tok, err := p.Token(ctx)
			if err == nil && tok != "" {
				return tok, nil
			}
			if err != nil && !errors.Is(err, ErrNoToken) {
				return "", err
			}
		}
		return "", ErrNoToken
	})
}

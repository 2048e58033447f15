package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2 adapts an oauth2.TokenSource. The source handles caching and refresh.
// A fetch that outlives ctx is abandoned and reported as ctx.Err().
func OAuth2(ts oauth2.TokenSource) TokenProvider {
	return TokenFunc(func(ctx context.Context) (string, error) {
		type result struct {
			tok *oauth2.Token
			err error
		}
		done := make(chan result, 1)
		go func() {
			tok, err := ts.Token()
			done <- result{tok, err}
		}()

		select {
		case r := <-done:
			return accessToken(r.tok, r.err)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}

// ClientCredentials builds a provider for the OAuth2 client-credentials grant.
// Each fetch runs under the caller's ctx; a valid token is reused.
func ClientCredentials(tokenURL, clientID, clientSecret string, scopes ...string) TokenProvider {
	return &clientCredentials{
		cfg: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
		sem: make(chan struct{}, 1),
	}
}

type clientCredentials struct {
	cfg *clientcredentials.Config

	// sem guards tok; a channel so waiters can give up on ctx
	sem chan struct{}
	tok *oauth2.Token
}

func (c *clientCredentials) Token(ctx context.Context) (string, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-c.sem }()

	tok, err := oauth2.ReuseTokenSource(c.tok, c.cfg.TokenSource(ctx)).Token()
	if err == nil {
		c.tok = tok
	}
	return accessToken(tok, err)
}

func accessToken(tok *oauth2.Token, err error) (string, error) {
	if err != nil {
		return "", fmt.Errorf("oauth2 token: %w", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return "", ErrNoToken
	}
	return tok.AccessToken, nil
}

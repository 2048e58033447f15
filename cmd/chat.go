package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xiaoyuanzhu-com/buildchat/apiclient"
	"github.com/xiaoyuanzhu-com/buildchat/auth"
	"github.com/xiaoyuanzhu-com/buildchat/config"
	"github.com/xiaoyuanzhu-com/buildchat/log"
	"github.com/xiaoyuanzhu-com/buildchat/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Open a project session",
	Long: `Open a project session and chat with the assistant.

Without an id (or with "new") the first message creates the session.
Type /reconnect to retry a dropped connection and /quit to leave.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := session.NewSessionID
		if len(args) == 1 {
			id = args[0]
		}

		cfg := config.Get()
		tokens, closeTokens := tokenProvider(cfg)
		defer closeTokens()

		client := apiclient.New(apiURL, apiclient.WithTokens(tokens))
		w := session.NewWorkspace(session.Options{
			Dial:         session.TransportDialer(apiURL, cfg.SocketPath, tokens, cfg.OpenTimeout),
			Collaborator: client,
		})
		defer w.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			follow(ctx, w, cmd.OutOrStdout(), newPrinter())
		}()

		if _, err := w.Open(id, nil); err != nil {
			return err
		}

		err := readInput(ctx, w, cmd.InOrStdin(), cmd.ErrOrStderr())
		cancel()
		<-done
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// tokenProvider prefers a static token, then OAuth client credentials, then
// the token file written by login
func tokenProvider(cfg *config.Config) (auth.TokenProvider, func()) {
	providers := []auth.TokenProvider{auth.Static(cfg.Token)}
	if cfg.HasOAuth() {
		providers = append(providers, auth.ClientCredentials(cfg.OAuthTokenURL, cfg.OAuthClientID, cfg.OAuthClientSecret))
	}

	store := auth.NewFileStore(cfg.TokenFile)
	if err := store.Watch(); err != nil {
		log.Debug().Err(err).Str("path", store.Path()).Msg("token file not watched")
	}
	providers = append(providers, store)

	return auth.First(providers...), func() { store.Close() }
}

// follow prints the state of whichever session the workspace currently holds
func follow(ctx context.Context, w *session.Workspace, out io.Writer, p *printer) {
	switches, unsubscribe := w.Switches()
	defer unsubscribe()

	cur := w.Current()
	for {
		if cur == nil {
			select {
			case next, ok := <-switches:
				if !ok {
					return
				}
				cur = next
			case <-ctx.Done():
				return
			}
			continue
		}

		states, unsubscribeState := cur.Subscribe()
		fmt.Fprint(out, p.update(cur.Snapshot()))

	watch:
		for {
			select {
			case st, ok := <-states:
				if !ok {
					states = nil
					continue
				}
				fmt.Fprint(out, p.update(st))
			case next, ok := <-switches:
				unsubscribeState()
				if !ok {
					return
				}
				cur = next
				break watch
			case <-ctx.Done():
				unsubscribeState()
				return
			}
		}
	}
}

// currentSession is the part of the workspace readInput needs
type currentSession interface {
	Current() *session.Session
}

// readInput submits each line to the current session until EOF or /quit
func readInput(ctx context.Context, w currentSession, in io.Reader, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		s := w.Current()
		if s == nil {
			return session.ErrClosed
		}

		if line == "/quit" || line == "/exit" {
			return nil
		}

		err := runLine(ctx, s, line)
		if errors.Is(err, session.ErrClosed) {
			// the workspace may have just switched to the created session
			if next := w.Current(); next != nil && next != s {
				err = runLine(ctx, next, line)
			}
		}

		var rejected *session.RejectedError
		switch {
		case err == nil:
		case errors.As(err, &rejected):
			fmt.Fprintln(errOut, errorStyle.Render(rejected.Reason))
		case errors.Is(err, session.ErrClosed):
			return err
		default:
			fmt.Fprintln(errOut, errorStyle.Render(err.Error()))
		}
	}
	return scanner.Err()
}

func runLine(ctx context.Context, s *session.Session, line string) error {
	if line == "/reconnect" {
		return s.Reconnect(ctx)
	}
	return s.Submit(ctx, session.UserMessage(line))
}

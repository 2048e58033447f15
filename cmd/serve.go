package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xiaoyuanzhu-com/buildchat/api"
	"github.com/xiaoyuanzhu-com/buildchat/config"
	"github.com/xiaoyuanzhu-com/buildchat/log"
	"github.com/xiaoyuanzhu-com/buildchat/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mock build service",
	Long: `Run a local build service that issues tokens, creates chats and
emulates a sandbox behind the session socket. Replies come from OpenAI when
OPENAI_API_KEY is set and echo the request otherwise.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := server.FromAppConfig(config.Get())
		if servePort != 0 {
			cfg.Port = servePort
		}

		srv, err := server.New(cfg)
		if err != nil {
			return err
		}
		api.SetupRoutes(srv.Router(), api.NewHandlers(srv))

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-errCh:
			srv.Shutdown(context.Background())
			return err
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from PORT)")
	rootCmd.AddCommand(serveCmd)
}

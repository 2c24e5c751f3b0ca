package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/mosaic/internal/server"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the store over HTTP",
	Long: `Start an HTTP API over the configured store. Mutations are saved to the
snapshot as they happen, and store events stream to clients at /api/events.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "host to bind to")
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := openCommandSession()
	if err != nil {
		return err
	}
	defer s.close("serve")

	srv := server.New(s.cfg, s.store, s.persister, s.bus, s.metrics, s.logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	addr := fmt.Sprintf("%s:%d", serveHost, servePort)
	if err := srv.Start(ctx, addr); err != nil {
		return err
	}
	return s.save()
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pkt.systems/codesync/internal/roomtest"
	"pkt.systems/pslog"
)

func newDevServerCmd() *cobra.Command {
	var addr string
	var ping time.Duration
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory room server for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			rooms := roomtest.New(roomtest.Options{PingInterval: ping, Logger: logger})
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			// Push streams end with the request context, so requests inherit ctx.
			srv := &http.Server{
				Addr:              addr,
				Handler:           rooms.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("devserver listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				logger.Info("devserver stopping")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8001", "listen address")
	cmd.Flags().DurationVar(&ping, "ping", 30*time.Second, "keepalive ping interval")
	return cmd
}

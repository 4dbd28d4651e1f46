package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"pkt.systems/codesync"
	"pkt.systems/codesync/internal/appconfig"
	"pkt.systems/codesync/internal/command"
	"pkt.systems/codesync/internal/metrics"
	"pkt.systems/codesync/internal/persist"
	"pkt.systems/codesync/internal/sessionprefs"
	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

const leaveTimeout = 5 * time.Second

// enterFunc puts a started client into a room.
type enterFunc func(ctx context.Context, client *codesync.Client, out io.Writer) error

type sessionOptions struct {
	displayName string
	transport   string
}

// runSession starts a client, enters a room and then reads terminal input
// until EOF, /quit or a signal.
func runSession(ctx context.Context, flags *rootFlags, opts sessionOptions, in io.Reader, out io.Writer, enter enterFunc) error {
	logger := pslog.Ctx(ctx)
	cfg, err := appconfig.Load(flags.configPath)
	if err != nil {
		return err
	}
	if opts.transport != "" {
		cfg.Channel.Transport = opts.transport
	}
	session, err := cfg.Session()
	if err != nil {
		return err
	}
	store, err := persist.Open(cfg.Prefs.Backend, cfg.StateDir, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	m := metrics.New(prometheus.NewRegistry())
	client, err := codesync.New(codesync.Config{Session: session}, codesync.Deps{
		Logger:  logger,
		Metrics: m,
		Prefs:   store,
	})
	if err != nil {
		return err
	}

	// The client outlives the signal context so the room can still be left
	// after an interrupt.
	if err := client.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if err := client.LeaveRoom(stopCtx); err != nil && !errors.Is(err, schema.ErrNotInRoom) {
			logger.Warn("session leave failed", "err", err)
		}
		if err := client.Stop(stopCtx); err != nil {
			logger.Warn("session stop failed", "err", err)
		}
	}()

	if opts.displayName != "" {
		if err := client.SetDisplayName(opts.displayName); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	prefs := sessionprefs.New()
	ctx = sessionprefs.WithContext(ctx, prefs)
	w := &lockedWriter{w: out}
	events, unsubscribe := client.Subscribe()
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		printEvents(gctx, w, client.Self(), events, prefs)
		return nil
	})
	g.Go(func() error {
		defer stop()
		if err := enter(gctx, client, w); err != nil {
			if errors.Is(err, schema.ErrDisplayNameRequired) {
				return fmt.Errorf("%w (use --name or `codesync name <name>`)", err)
			}
			return err
		}
		handler := command.NewHandler(client, command.HandlerConfig{Out: w})
		return readInput(gctx, in, handler, w)
	})
	return g.Wait()
}

func readInput(ctx context.Context, in io.Reader, handler *command.Handler, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			switch strings.TrimSpace(line) {
			case "/quit", "/exit":
				return nil
			}
			if _, err := handler.Handle(ctx, line); err != nil {
				_, _ = fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

// lockedWriter serializes writes from the input loop and the event printer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jadedragon942/ddwiki/server"
)

// errLocked means another process already serves the data directory.
var errLocked = errors.New("data directory is in use by another ddwiki process")

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the wiki JSON API",
		Long: `Serve the wiki over HTTP until interrupted.

Only one serve process may use a data directory at a time; a second one
exits immediately.`,
		Example: `  ddwiki serve
  ddwiki serve --addr 127.0.0.1:9000 --config ddwiki.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath, addr, nil)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

// runServe blocks until ctx is done. ready, when set, receives the bound
// address once the listener is open.
func runServe(ctx context.Context, configPath, addr string, ready chan<- string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	lock := flock.New(filepath.Join(cfg.DataDir, "ddwiki.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", errLocked, cfg.DataDir)
	}
	defer lock.Unlock()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := openApp(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	readTimeout, writeTimeout, shutdownTimeout := a.cfg.Server.Timeouts()

	srv := server.New(a.wiki, server.Options{
		Engine:         a.cfg.Storage.Engine,
		MaxResults:     a.cfg.Search.MaxResults,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		Gatherer:       reg,
	}, a.logger)

	httpServer := &http.Server{
		Handler:      srv.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		ErrorLog:     zap.NewStdLog(a.logger),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.logger.Info("serving",
		zap.String("addr", ln.Addr().String()),
		zap.String("engine", a.cfg.Storage.Engine),
		zap.Int("indexed", a.wiki.IndexedDocuments()))
	if ready != nil {
		ready <- ln.Addr().String()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx := context.Background()
	if shutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, shutdownTimeout)
		defer cancel()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

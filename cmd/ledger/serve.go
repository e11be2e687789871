package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/david/market-ledger/internal/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAddr    string
	serveOrigins string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Serves the latest ledger document and lets an admin trigger runs in the background.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config: :8080)")
	serveCmd.Flags().StringVar(&serveOrigins, "cors-origins", "", "Extra comma-separated CORS origins")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := api.Options{
		Runner:      a.runner(a.cfg.Run.Output, a.cfg.Run.News),
		Registry:    a.registry,
		DataFile:    a.cfg.Run.Output,
		AdminSecret: a.cfg.Server.AdminSecret,
		CORSOrigins: strings.Split(serveOrigins, ","),
		Logger:      a.logger,
	}
	if a.store != nil {
		opts.Store = a.store
	}
	srv, err := api.NewServer(opts)
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", zap.String("addr", addr))
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.logger.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}

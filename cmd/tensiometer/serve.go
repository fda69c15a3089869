package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	adapthttp "tensiometer/internal/adapter/http"
	"tensiometer/internal/app"
	"tensiometer/internal/config"

	"github.com/spf13/cobra"
)

const sessionSweepInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if cfg.Mode == config.ModeEmbedded {
		return errors.New("MODE=embedded: mount adapthttp.Server.Handler() in the host process instead of serving")
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cfg.OpenStore(ctx)
	if err != nil {
		log.Printf("store %s unavailable: %v", cfg.Store, err)
		store = config.UnavailableStore(err)
	} else {
		log.Printf("store %s connected", cfg.Store)
	}
	defer func() { _ = store.Close() }()

	authSvc := app.NewAuthService(store.Users, store.Sessions).WithSessionTTL(cfg.SessionTTL)
	srv := adapthttp.New(app.NewMeasurementService(store.Measurements), authSvc).
		WithCORSOrigin(cfg.CORSOrigin)
	if cfg.TrustForwardAuth {
		srv.WithForwardAuth()
	}
	if cfg.SSOEnabled() {
		oidcCfg, err := adapthttp.NewOIDCConfig(ctx, cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCRedirectURL)
		if err != nil {
			log.Printf("sso disabled: %v", err)
		} else {
			srv.WithOIDC(oidcCfg)
		}
	}

	go sweepSessions(ctx, authSvc)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", httpSrv.Addr)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func sweepSessions(ctx context.Context, auth *app.AuthService) {
	t := time.NewTicker(sessionSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := auth.DeleteExpiredSessions(ctx); err != nil {
				log.Printf("sweep sessions: %v", err)
			}
		}
	}
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intake/internal/app"
	"intake/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				cfg := ac.Config
				handler, err := server.New(server.Config{
					Engine:   ac.Engine,
					BasePath: cfg.Server.BasePath,
					Auth: server.AuthConfig{
						APIKeys:   cfg.Auth.APIKeys,
						JWTSecret: cfg.Auth.JWTSecret,
					},
					RateLimit: server.RateLimitConfig{
						Requests:   cfg.RateLimit.Requests,
						Window:     cfg.RateLimit.Window,
						MaxClients: cfg.RateLimit.MaxClients,
					},
					TrustProxy: cfg.Server.TrustProxy,
					Log:        ac.Log.With().Str("component", "http").Logger(),
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				ln, err := net.Listen("tcp", cfg.Server.Addr)
				if err != nil {
					return err
				}
				ac.Log.Info().
					Str("addr", ln.Addr().String()).
					Str("base_path", cfg.Server.BasePath).
					Str("driver", cfg.Database.Driver).
					Msg("serving intake API")
				if err := serveUntilDone(ctx, srv, ln, shutdownTimeout, ac.Log); err != nil {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config)")
	cmd.Flags().String("base-path", "", "API base path (default from config)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("base-path", cmd.Flags().Lookup("base-path"))
	return cmd
}

const shutdownTimeout = 5 * time.Second

// serveUntilDone serves on ln until ctx is cancelled, then drains within
// timeout. A failed drain is logged; the serve error is returned.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, log zerolog.Logger) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown http server")
		}
	}()
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/tbourn/go-newsletter-backend/internal/http"
	"github.com/tbourn/go-newsletter-backend/internal/sysutil"
)

// shutdownTimeout bounds draining in-flight requests on stop.
const shutdownTimeout = 30 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoScheduler bool

	// ready, when set, receives the bound address once the listener is up.
	ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API, broadcast scheduler, and bounce consumer",
		Long: `Serve the admin HTTP API and the public one-click unsubscribe endpoint.

When BROADCAST_SUBJECTS and BROADCAST_INTERVAL are set, the listed subjects
are broadcast on every interval. When BOUNCE_AMQP_URL is set, bounce events
are consumed from BOUNCE_QUEUE. SIGINT or SIGTERM drains in-flight requests
and stops both loops.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoScheduler, "no-scheduler", false, "do not run the periodic broadcast in this process")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	a, cleanup, err := bootstrap(cmd, opts.RootOptions, "serve")
	if err != nil {
		return err
	}
	defer cleanup()
	cfg := a.Config

	ctx, stop := sysutil.SignalContext(cmd.Context())
	defer stop()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, a)

	srv := &http.Server{
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("listen on :%s", cfg.Port), err)
	}

	var wg sync.WaitGroup
	if !opts.NoScheduler {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Scheduler().Run(ctx)
		}()
	}
	if consumer := a.BounceConsumer(); consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("bounce consumer stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("version", version()).Msg("server starting")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if opts.ready != nil {
		opts.ready(ln.Addr().String())
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	stop()
	wg.Wait()

	if serveErr != nil {
		return WrapExitError(ExitFailure, "http server", serveErr)
	}
	log.Info().Msg("server stopped")
	return nil
}

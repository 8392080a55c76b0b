package cli

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-newsletter-backend/internal/app"
	"github.com/tbourn/go-newsletter-backend/internal/config"
	"github.com/tbourn/go-newsletter-backend/internal/observability"
	"github.com/tbourn/go-newsletter-backend/internal/sysutil"
)

// bootstrap loads configuration, installs the logger and tracer, and opens
// the application. The returned cleanup closes everything in reverse order.
func bootstrap(cmd *cobra.Command, opts *RootOptions, process string) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	sysutil.SetupLogger(cmd.ErrOrStderr(), level, cfg.LogPretty)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version(), process)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "init tracing", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		flushTraces(shutdownOTel)
		return nil, nil, WrapExitError(ExitCommandError, "initialize", err)
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("close")
		}
		flushTraces(shutdownOTel)
	}
	return a, cleanup, nil
}

func flushTraces(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
}

// Package cli implements the newsletter command line: the long-running
// server and the one-shot delivery commands an operator or cron job runs.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-newsletter-backend/internal/sysutil"
)

// Version is stamped at build time:
//
//	go build -ldflags "-X github.com/tbourn/go-newsletter-backend/internal/cli.Version=v1.4.0"
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
	Format  string // "json" | "text"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "newsletter",
		Short: "Newsletter issue lifecycle and batched delivery",
		Long: `Run the newsletter admin API, or trigger deliveries from the command line.

Configuration comes from the environment. A dotenv file (default .env) is
loaded first when present; variables already set in the environment win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return loadEnvFile(opts.EnvFile, cmd.Flags().Changed("env-file"))
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewBroadcastCommand(opts))
	cmd.AddCommand(NewResendCommand(opts))
	cmd.AddCommand(NewSendAdminCommand(opts))

	return cmd
}

// loadEnvFile loads path into the environment. A missing default file is
// fine; a missing file the user asked for is not.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return WrapExitError(ExitCommandError, "read env file", err)
	}
	if err := godotenv.Load(path); err != nil {
		return WrapExitError(ExitCommandError, "parse env file "+path, err)
	}
	return nil
}

// version prefers APP_VERSION (set by deploy tooling) over the build stamp.
func version() string {
	return sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), Version)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

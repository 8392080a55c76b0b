// Command newsletter runs the newsletter admin API and the one-shot
// delivery commands.
//
// @title        Newsletter Backend API
// @version      1.0
// @description  Issue review, batched delivery, and subscription management for newsletter subjects.
// @BasePath     /api/v1
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tbourn/go-newsletter-backend/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

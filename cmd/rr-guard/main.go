package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// isForbidden reports a denied check, which exits with status 2.
func isForbidden(err error) bool {
	return errors.Is(err, domain.ErrForbidden)
}

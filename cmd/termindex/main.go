package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/cli"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "termindex: %v\n", err)
	}
	os.Exit(apperrors.ExitCode(err))
}

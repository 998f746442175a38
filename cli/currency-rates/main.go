package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/malusev998/currency-rates/cli/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cmd.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	if err != nil {
		os.Exit(1)
	}
}

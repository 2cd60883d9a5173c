package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pacewatch/internal/app"
)

func main() {
	var opts app.Options
	flag.StringVar(&opts.ConfigPath, "config", "./config.yaml", "path to config yaml/json")
	flag.BoolVar(&opts.Once, "once", false, "run one discovery-to-notify iteration per streamer, then exit")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "evaluate and log, but do not deliver notifications")
	flag.BoolVar(&opts.Force, "force", false, "notify on every resolved split regardless of threshold")
	flag.BoolVar(&opts.NoQuiet, "no-quiet", false, "ignore configured quiet hours")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)
}

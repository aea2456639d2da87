package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cmd, closeApp := newRootCmd()
	err := errors.Join(cmd.ExecuteContext(ctx), closeApp())
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "crawlctl: %v\n", err)
		os.Exit(1)
	}
}

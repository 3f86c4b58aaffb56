// Command cronhook is an example application: it registers a few jobs and
// hands control to the cronhook CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cronhook/pkg/cli"
	"cronhook/pkg/cronjob"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := cronjob.NewRegistry()
	register(reg)

	code := cli.Main(ctx, reg, cli.Options{Version: version})
	cancel()
	os.Exit(code)
}

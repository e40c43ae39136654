// Command radiko-archiver synchronizes radiko program listings and archives
// matching broadcasts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/radikoarchive/radiko-archiver/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}

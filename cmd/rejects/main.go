// Command rejects reads and writes nested values in a hash key-value store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/appellation/rejects/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

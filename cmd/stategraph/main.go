// Command stategraph runs the example workflows from the terminal or over
// HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/randalmurphal/stategraph/pkg/stategraph"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps run failures to distinct exit statuses.
func exitCode(err error) int {
	var gerr *stategraph.GraphExecutionError
	if !errors.As(err, &gerr) {
		return 1
	}
	switch stategraph.ErrorKind(err) {
	case stategraph.KindIterationLimit:
		return 3
	case stategraph.KindCancelled:
		return 130
	default:
		return 2
	}
}

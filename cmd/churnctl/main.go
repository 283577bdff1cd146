// Command churnctl runs the churn analysis pipeline of the tutoring school:
// extraction from the CRM and LMS, the lost clients database, teacher
// analytics, finance and the bonus models.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

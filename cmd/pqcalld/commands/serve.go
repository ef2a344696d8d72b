package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pqcall/internal/domain"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the routing core until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			wire.Start()
			wire.Log.Info("routing core started")

			events, cancel := wire.Events.Subscribe(256)
			defer cancel()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					logEvent(wire.Log, ev)
				case s := <-sig:
					wire.Log.Info("shutting down", zap.String("signal", s.String()))
					return nil
				}
			}
		},
	}
}

// logEvent mirrors the event stream into the structured log. Alerts get
// warning level; everything else is informational.
func logEvent(log *zap.Logger, ev domain.Event) {
	switch e := ev.(type) {
	case domain.SecurityAlert:
		log.Warn("security alert",
			zap.String("alert", e.Alert),
			zap.String("source", e.Source),
			zap.String("detail", e.Detail))
	case domain.FlowFailed:
		log.Warn("flow failed",
			zap.String("flow", e.Flow),
			zap.String("step", e.FailedStep),
			zap.String("reason", e.Reason))
	default:
		log.Info(ev.EventName())
	}
}

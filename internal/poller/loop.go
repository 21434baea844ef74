package poller

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/dvloznov/bank-forwarder/internal/logger"
)

// Loop runs cycles until ctx is cancelled, waiting interval after the end of
// each cycle before starting the next. Cancellation is only observed between
// cycles; a running cycle always completes. Loop returns ctx.Err().
func (p *Poller) Loop(ctx context.Context, clk clock.Clock, interval time.Duration) error {
	log := logger.FromContext(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.RunCycle(ctx)

		log.Debug().Dur("interval", interval).Msg("Waiting for next cycle")
		timer := clk.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Poll loop stopped")
			return ctx.Err()
		case <-timer.C():
		}
	}
}

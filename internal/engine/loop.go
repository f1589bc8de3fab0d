package engine

import (
	"context"

	"go.uber.org/zap"

	"relaylink/internal/connrec"
)

// pollTimeoutMillis bounds how long Wait blocks between batches so
// PollDials and the cron-scheduled jobs (which post onto applyc) get a
// chance to run even when no fd is ready — §5's "the one-second tick
// happens between readiness batches".
const pollTimeoutMillis = 250

// Run drives the single cooperative loop (§2, §5) until ctx is
// cancelled: wait for readiness, dispatch handle_read/handle_write,
// poll in-flight dials, apply scheduled-job callbacks, reap marked
// connections, and, when config.DebugAssertions is set, log every
// connection that fails connrec.AssertOK — all from this one goroutine, matching spec.md's
// single-threaded state-mutation rule.
func (e *Engine) Run(ctx context.Context) error {
	applyc := make(chan func(), 16)
	if err := e.StartScheduledJobs(func(f func()) {
		select {
		case applyc <- f:
		case <-ctx.Done():
		}
	}); err != nil {
		return err
	}
	defer e.StopScheduledJobs(context.Background())

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-applyc:
			f()
		default:
		}

		events, err := e.Poller.Wait(ctx, pollTimeoutMillis)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		if err != nil {
			e.log.Warn("poll wait", zap.Error(err))
			continue
		}

		for _, ev := range events {
			c, ok := e.ConnForToken(ev.Token)
			if !ok {
				continue
			}
			if ev.Readable {
				if err := e.HandleRead(c); err != nil {
					e.log.Debug("handle_read", zap.Uint64("conn", c.ID), zap.Error(err))
				}
			}
			if ev.Writable && !c.MarkedForClose {
				if err := e.HandleWrite(c); err != nil {
					e.log.Debug("handle_write", zap.Uint64("conn", c.ID), zap.Error(err))
				}
			}
			if ev.Err || ev.Hup {
				c.MarkForClose()
			}
		}

		e.PollDials()
		e.ReapMarked()

		if e.cfg.DebugAssertions {
			for _, c := range e.Table.All() {
				if err := connrec.AssertOK(c); err != nil {
					e.log.Error("connection invariant violated", zap.Error(err))
				}
			}
		}
	}
}

// Package dispatcher delivers pending notification records.
//
// A Dispatcher runs N independent worker loops against a Repository. Each
// loop requeues due retries and expired leases, claims a batch ordered by
// priority then age, and processes the batch one record at a time:
//
//	claimed -> render -> send -> sent | failed_retryable | dead
//
// Render failures and senders' permanent errors dead-letter the record on the
// first attempt. Transient errors, timeouts, rate limiter waits and recovered
// panics schedule a retry with exponential backoff until MaxAttempts is
// reached. Only the worker holding a record's claim may finalize it; a lost
// lease surfaces as notification.ErrLeaseLost and the record is left to
// whoever reclaimed it.
//
// Store outages never end a loop. The loop logs, backs off and polls again;
// records it had claimed become claimable once their lease expires.
//
// Usage:
//
//	d, err := dispatcher.New(store, catalog, router,
//		dispatcher.WithConfig(cfg.Dispatcher),
//		dispatcher.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//	g.Go(d.Run(ctx))
package dispatcher

// Package outbox writes notification intents as durable pending records.
//
// Enqueue validates a request against the registry, picks the channel,
// resolves the locale (explicit, tenant, user, fallback), reserves the
// idempotency key and persists a pending record. Nothing is written when
// validation fails, and a request whose key was already used returns the
// stored record instead of creating another.
//
// For the transactional outbox guarantee, bind the writer to a repository
// that joins the caller's transaction:
//
//	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
//		if err := orders.Ship(ctx, tx, orderID); err != nil {
//			return err
//		}
//		_, err := writer.WithRepository(store.WithTx(tx)).Enqueue(ctx, outbox.Request{
//			Type:      "order.shipped",
//			Recipient: customer.Email,
//			Payload:   map[string]any{"order_id": orderID},
//		})
//		return err
//	})
//
// The notification then exists if and only if the order change commits.
package outbox

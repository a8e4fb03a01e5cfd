// Package webhook delivers JSON payloads to HTTP endpoints and signs them.
//
// A Sender makes a single POST per call and classifies the outcome:
//
//	err := sender.Send(ctx, url, body,
//		webhook.WithSignature(secret),
//		webhook.WithDeliveryID(recordID),
//	)
//	if webhook.IsPermanent(err) {
//		// do not retry
//	}
//
// Invalid URLs and 4xx responses (other than 408, 425 and 429) are permanent.
// Network errors, timeouts and 5xx responses are temporary.
//
// Receivers verify deliveries with ExtractSignatureHeaders and VerifySignature.
package webhook

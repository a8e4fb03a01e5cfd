// Package notify is the application-facing API of notifykit.
//
//	res := svc.SendNotification(ctx, "crm.lead.confirmation", lead.Email,
//		map[string]any{"lead_name": lead.Name},
//		outbox.Options{IdempotencyKey: "lead-confirm:" + lead.ID, TenantID: lead.TenantID},
//	)
//	if !res.Success {
//		return res.Error
//	}
//
// Send calls report the enqueue verdict only. Delivery happens later in the
// dispatcher and can be followed with Get or GetByIdempotencyKey.
package notify

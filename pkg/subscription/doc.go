// Package subscription orchestrates the subscription lifecycle of a user:
// opening gateway subscriptions, changing plans, applying confirmed payments
// and cancelling.
//
// # Architecture
//
// Service ties together three sources of truth:
//
//   - Gateway: the remote subscription and payment objects (*asaas.Client)
//   - ProfileStore: the local subscription state of each user
//   - PaymentStore: the local payment ledger (payment.Store)
//
// Money math is delegated to plan.Calculate. Every profile write goes through
// ProfileStore.UpdateIf with the version that was read, and is retried on
// conflict a bounded number of times. Operations that read then write the
// same user (ChangePlan, ApplyConfirmedPayment, SyncSubscriptionPayment) also
// hold a per-user locker.Locker for their whole duration.
//
// # Plan changes
//
// ChangePlan prices the change against the gateway's nextDueDate:
//
//   - Downgrades are free and staged in State.PendingPlan. They are refused
//     with ErrConflictingPendingPayment while the user has a charge opened in
//     the last PendingWindow, so a downgrade never races an in-flight upgrade.
//   - Upgrades cheaper than the free threshold switch plans in place.
//   - Other upgrades issue a one-off charge tagged "UPGRADE:<PLAN>:..." and
//     return ChangeWaitingPayment. The plan changes when the charge is
//     confirmed, by webhook or polling, through ApplyConfirmedPayment.
//
// # Applying payments
//
// ApplyConfirmedPayment and SyncSubscriptionPayment are idempotent: a payment
// whose paid-at is not newer than State.LastPaymentAt is reported as already
// applied. Underpaid, below-minimum and FREE payments are reported through
// ApplyResult.Reason, never as errors, so webhook deliveries are acknowledged.
//
// Expiry only moves forward. A renewal advances the current expiry by one
// cycle of the resulting plan; a move from a monthly to an annual plan starts
// a fresh year at the payment date; a lapsed expiry is re-anchored at the
// payment date.
//
// # Usage
//
//	svc := subscription.NewService(asaasClient, profiles, payments,
//		subscription.WithLogger(log),
//		subscription.WithLocker(locker.NewRedis(rdb)),
//		subscription.WithNotifier(dispatcher),
//		subscription.WithQRCodePublisher(pixqr.NewPublisher(s3)),
//	)
//
//	res, err := svc.ChangePlan(ctx, userID, plan.ProAnnual, "", subscription.ChangeOptions{})
//	switch {
//	case errors.Is(err, subscription.ErrConflictingPendingPayment):
//		// 409
//	case err == nil && res.Status == subscription.ChangeWaitingPayment:
//		// show res.Pix to the user
//	}
package subscription

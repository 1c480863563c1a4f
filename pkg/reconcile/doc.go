// Package reconcile keeps local subscription state in line with the payment
// gateway.
//
// Reconciler handles webhook deliveries: it authenticates the shared token,
// drops duplicate event ids through a Deduplicator and routes payment
// events by status. Confirmed recurring charges go through
// subscription.Service.SyncSubscriptionPayment, confirmed one-off charges
// through ApplyConfirmedPayment. Deleted subscriptions deactivate every
// profile that references them.
//
// Sweeper is the polling fallback for lost webhooks. It re-reads open
// payments from the gateway and feeds changes to the same handler:
//
//	c := cron.New()
//	sweeper := reconcile.NewSweeper(rec, gateway, payments, reconcile.WithSweepLocker(lk))
//	if _, err := sweeper.Schedule(c, "@every 5m"); err != nil {
//		return err
//	}
//	c.Start()
//	defer c.Stop()
package reconcile

// Package retry provides backoff strategies, a bounded retry loop and a
// circuit breaker shared by the gateway client, PIX QR polling and outbound
// notification delivery.
//
//	err := retry.Do(ctx, 3, retry.FixedBackoff{Interval: time.Second}, func(ctx context.Context) error {
//		qr, err := client.GetPixQRCode(ctx, paymentID)
//		if errors.Is(err, asaas.ErrNotFound) {
//			return retry.Permanent(err)
//		}
//		...
//	})
package retry

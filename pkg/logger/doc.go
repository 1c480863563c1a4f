// Package logger builds *slog.Logger instances with functional options and
// injects request-scoped attributes from context on every record.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "billingd"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "payment applied",
//		logger.UserID(st.UserID),
//		logger.PaymentID(ev.GatewayPaymentID),
//		logger.Plan(finalPlan),
//	)
//
// Attribute helpers keep key names consistent across packages and return an
// empty Attr for empty identifiers, so call sites need no nil checks.
package logger

// Package requestid attaches a correlation id to each inbound request and
// background job and exposes it to slog through LoggerExtractor.
package requestid

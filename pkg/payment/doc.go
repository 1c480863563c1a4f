// Package payment keeps the local ledger of gateway payments.
//
// Records are keyed by the gateway payment id and written through Store.Upsert,
// which inserts on first sight and afterwards only refreshes mutable fields
// (status, paid-at, artifacts). Status changes follow a fixed transition table,
// so a late PENDING delivery can never regress a confirmed payment.
//
// Recorder sits in front of a Store and resolves the owning user when the
// caller only knows the chat id or the gateway customer id. A payment whose
// owner is unknown is skipped with a warning instead of failing the caller.
//
// The package also owns the external reference codec used to correlate
// gateway payments with local intent:
//
//	PLUS:5511999999999:1714000000000
//	UPGRADE:PRO_ANUAL:5511999999999:1714000000000
//	SUB:PRO:5511999999999:1714000000000
package payment

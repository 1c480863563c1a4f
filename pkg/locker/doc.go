// Package locker provides per-key mutual exclusion. Local serialises within
// one process; Redis uses redsync so several billingd replicas never apply
// payments for the same user concurrently.
package locker

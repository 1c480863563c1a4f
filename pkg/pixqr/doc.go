// Package pixqr publishes PIX QR code images for gateway charges.
package pixqr

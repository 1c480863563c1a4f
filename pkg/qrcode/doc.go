// Package qrcode renders PIX payloads as PNG QR codes with
// github.com/skip2/go-qrcode and converts between PNG bytes, base64 and
// data URIs.
package qrcode

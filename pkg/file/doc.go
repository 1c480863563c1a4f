// Package file stores small public objects, such as PIX QR code images, in
// S3 (aws-sdk-go-v2) or on the local filesystem, and returns their URLs.
package file

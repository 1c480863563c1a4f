package qrcode

import (
	"encoding/base64"
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyContent        = errors.New("qr code content cannot be empty")
	ErrFailedToGenerate    = errors.New("failed to generate QR code")
	ErrInvalidEncodedImage = errors.New("invalid base64 encoded image")
)

const (
	// DefaultSize is the PNG edge length in pixels used for non-positive sizes.
	DefaultSize = 256

	dataURIPrefix = "data:image/png;base64,"
)

// Generate renders content as a PNG. PIX copy-and-paste payloads are long,
// so medium error correction keeps the symbol readable at small sizes.
func Generate(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrFailedToGenerate, err)
	}
	return png, nil
}

// GenerateDataURI renders content and returns it as a PNG data URI.
func GenerateDataURI(content string, size int) (string, error) {
	png, err := Generate(content, size)
	if err != nil {
		return "", err
	}
	return DataURI(png), nil
}

// DataURI wraps PNG bytes as a data URI.
func DataURI(png []byte) string {
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png)
}

// DecodeBase64 decodes a gateway-supplied base64 image. A data URI prefix
// is accepted and stripped.
func DecodeBase64(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(encoded), dataURIPrefix))
	if encoded == "" {
		return nil, ErrEmptyContent
	}
	png, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrInvalidEncodedImage, err)
	}
	return png, nil
}

package qrcode_test

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/qrcode"
)

const pixPayload = "00020126580014br.gov.bcb.pix0136123e4567-e12b-12d1-a456-4266554400005204000053039865406029.905802BR5913Fulano de Tal6008BRASILIA62070503***63041D3D"

func TestGenerate(t *testing.T) {
	t.Parallel()

	t.Run("renders png of requested size", func(t *testing.T) {
		t.Parallel()
		data, err := qrcode.Generate(pixPayload, 300)
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 300, img.Bounds().Dx())
	})

	t.Run("default size", func(t *testing.T) {
		t.Parallel()
		data, err := qrcode.Generate(pixPayload, 0)
		require.NoError(t, err)
		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, qrcode.DefaultSize, img.Bounds().Dx())
	})

	t.Run("empty content", func(t *testing.T) {
		t.Parallel()
		_, err := qrcode.Generate(" \n", 100)
		require.ErrorIs(t, err, qrcode.ErrEmptyContent)
	})
}

func TestDataURIRoundTrip(t *testing.T) {
	t.Parallel()

	uri, err := qrcode.GenerateDataURI(pixPayload, 128)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	raw, err := qrcode.DecodeBase64(uri)
	require.NoError(t, err)
	assert.Equal(t, uri, qrcode.DataURI(raw))

	_, err = qrcode.DecodeBase64("%%%")
	require.ErrorIs(t, err, qrcode.ErrInvalidEncodedImage)
	_, err = qrcode.DecodeBase64("")
	require.ErrorIs(t, err, qrcode.ErrEmptyContent)
}

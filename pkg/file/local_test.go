package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/file"
)

func TestLocalStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	s, err := file.NewLocalStorage(dir, "/static")
	require.NoError(t, err)

	url, err := s.Put(ctx, "pix/pay_1.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/static/pix/pay_1.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "pix", "pay_1.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.True(t, s.Exists(ctx, "pix/pay_1.png"))

	_, err = s.Put(ctx, "../escape.png", []byte("x"), "image/png")
	require.ErrorIs(t, err, file.ErrInvalidPath)

	require.NoError(t, s.Delete(ctx, "pix/pay_1.png"))
	assert.False(t, s.Exists(ctx, "pix/pay_1.png"))
	require.ErrorIs(t, s.Delete(ctx, "pix/pay_1.png"), file.ErrFileNotFound)

	_, err = file.NewLocalStorage("", "")
	require.ErrorIs(t, err, file.ErrInvalidConfig)
}

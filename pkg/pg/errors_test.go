package pg_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	wrapped := func(code string) error {
		return fmt.Errorf("query: %w", &pgconn.PgError{Code: code})
	}

	assert.True(t, pg.IsNotFoundError(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
	assert.False(t, pg.IsNotFoundError(nil))

	assert.True(t, pg.IsDuplicateKeyError(wrapped("23505")))
	assert.False(t, pg.IsDuplicateKeyError(wrapped("23503")))
	assert.False(t, pg.IsDuplicateKeyError(errors.New("plain")))

	assert.True(t, pg.IsSerializationError(wrapped("40001")))
	assert.False(t, pg.IsSerializationError(nil))
}

package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"port42/internal/apperr"

	"github.com/stretchr/testify/assert"
)

func TestReadWithRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := readWithRetry(ctx, nopLog(), "test", func() error {
		calls++
		if calls == 1 {
			return apperr.FromDB(driver.ErrBadConn, "")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = readWithRetry(ctx, nopLog(), "test", func() error {
		calls++
		return apperr.NotFound("nope")
	})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, 1, calls)

	calls = 0
	err = readWithRetry(ctx, nopLog(), "test", func() error {
		calls++
		return driver.ErrBadConn
	})
	assert.True(t, errors.Is(err, driver.ErrBadConn))
	assert.Equal(t, 2, calls)
}

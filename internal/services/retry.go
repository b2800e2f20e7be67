package services

import (
	"context"
	"time"

	"port42/internal/apperr"

	"go.uber.org/zap"
)

const readRetryBackoff = 100 * time.Millisecond

// readWithRetry 只读查询遇到临时性存储错误时重试一次。写操作不要用它。
func readWithRetry(ctx context.Context, log *zap.SugaredLogger, op string, fn func() error) error {
	err := fn()
	if err == nil || !apperr.IsTransient(err) || ctx.Err() != nil {
		return err
	}

	log.Warnw("Transient read failure, retrying once", "op", op, "error", err)
	timer := time.NewTimer(readRetryBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return err
	case <-timer.C:
	}
	return fn()
}

// Package retry 提供出站调用共用的有界指数退避重试。
package retry

import (
	"context"
	"errors"
	"time"

	"evidence-rag-go/pkg/log"
)

// ErrInvalidMaxAttempts 表示 maxAttempts 不是正数。
var ErrInvalidMaxAttempts = errors.New("retry: maxAttempts must be > 0")

// permanentError 标记不应重试的错误（认证、配置类）。
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent 包装一个错误，使 Do 立即返回而不再重试。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断错误链中是否包含 Permanent 标记。
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do 以指数退避执行 operation，最多 maxAttempts 次。
// 第 n 次失败后等待 baseDelay * 2^(n-1)；Permanent 错误和 context 结束会立即返回。
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, operation func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		log.Warnf("[Retry] 第 %d/%d 次调用失败, %v 后重试: %v", attempt, maxAttempts, delay, lastErr)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}

package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// RetryPolicy - 원격 호출 재시도 정책
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy - 3회, 2초 간격 (시도마다 선형 증가)
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Second}

// Retry - 일시적 오류(429/5xx)일 때만 재시도. 마지막 에러를 그대로 반환
func Retry[T any](ctx context.Context, policy RetryPolicy, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		if attempt > 1 {
			log.Printf("   🔄 [%s] Retry attempt %d/%d", label, attempt, attempts)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransientError(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		wait := policy.Backoff * time.Duration(attempt)
		log.Printf("⚠️  [%s] Transient error on attempt %d/%d, waiting %s: %v", label, attempt, attempts, wait, err)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, lastErr
			case <-timer.C:
			}
		}
	}

	return zero, fmt.Errorf("%s: %d attempts exhausted: %w", label, attempts, lastErr)
}

// IsQuotaError - 429 Rate Limit / quota 에러인지 확인
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "resource_exhausted")
}

// IsTransientError - 재시도할 가치가 있는 에러 (quota + 서버측 5xx)
func IsTransientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsQuotaError(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{"500", "502", "503", "504", "unavailable", "internal error"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

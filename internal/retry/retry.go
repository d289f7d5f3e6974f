// Package retry 提供带退避策略的有限次重试。
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultMaxAttempts 默认最大尝试次数
	DefaultMaxAttempts = 5

	// DefaultDelay 默认重试延迟
	DefaultDelay = 10 * time.Second

	// DefaultMaxDelay 默认最大重试延迟
	DefaultMaxDelay = 5 * time.Minute
)

// ErrExhausted is returned (wrapped) when every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

// BackoffType 退避策略类型
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffLinear      BackoffType = "linear"
	BackoffExponential BackoffType = "exponential"
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts" env:"RG_RETRY_MAX_ATTEMPTS"`
	Delay       time.Duration `yaml:"delay" env:"RG_RETRY_DELAY"`
	Backoff     BackoffType   `yaml:"backoff" env:"RG_RETRY_BACKOFF"`
	MaxDelay    time.Duration `yaml:"max_delay" env:"RG_RETRY_MAX_DELAY"`
}

// DefaultPolicy returns the policy used for index lookups.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		Backoff:     BackoffExponential,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Output records what happened across attempts.
type Output struct {
	Attempts     int             `json:"attempts"`
	Success      bool            `json:"success"`
	LastError    string          `json:"last_error,omitempty"`
	Delays       []time.Duration `json:"delays"`
	TerminatedBy string          `json:"terminated_by"` // success, max_attempts, permanent, context_cancelled
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; Do returns it unwrapped immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a permanent error, the attempts are
// used up or ctx is done.
func Do(ctx context.Context, policy Policy, fn func(attempt int) error) (*Output, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	delay := policy.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}

	backoff := policy.Backoff
	if backoff == "" {
		backoff = BackoffExponential
	}

	output := &Output{
		Delays: make([]time.Duration, 0),
	}

	var lastError error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output.Attempts = attempt

		// 检查上下文取消
		if err := ctx.Err(); err != nil {
			output.TerminatedBy = "context_cancelled"
			return output, err
		}

		err := fn(attempt)
		if err == nil {
			output.Success = true
			output.TerminatedBy = "success"
			return output, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			output.TerminatedBy = "permanent"
			output.LastError = perm.err.Error()
			return output, perm.err
		}
		lastError = err

		// 如果不是最后一次尝试，等待后重试
		if attempt < maxAttempts {
			waitDuration := CalculateBackoffDelay(delay, attempt, backoff, policy.MaxDelay)
			output.Delays = append(output.Delays, waitDuration)

			timer := time.NewTimer(waitDuration)
			select {
			case <-ctx.Done():
				timer.Stop()
				output.TerminatedBy = "context_cancelled"
				return output, ctx.Err()
			case <-timer.C:
				// 继续下一次尝试
			}
		}
	}

	output.TerminatedBy = "max_attempts"
	output.LastError = lastError.Error()
	return output, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastError)
}

// CalculateBackoffDelay 计算退避延迟
func CalculateBackoffDelay(baseDelay time.Duration, attempt int, backoff BackoffType, maxDelay time.Duration) time.Duration {
	var delay time.Duration

	switch backoff {
	case BackoffFixed:
		delay = baseDelay
	case BackoffLinear:
		delay = saturatingMul(baseDelay, int64(attempt))
	case BackoffExponential:
		shift := attempt - 1
		if shift < 0 {
			shift = 0
		}
		if shift >= 62 {
			delay = saturatingMul(baseDelay, math.MaxInt64)
		} else {
			delay = saturatingMul(baseDelay, int64(1)<<shift)
		}
	default:
		delay = baseDelay
	}

	// 应用最大延迟限制
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// saturatingMul 返回 d*n，溢出时截断为最大时长
func saturatingMul(d time.Duration, n int64) time.Duration {
	if d <= 0 || n <= 0 {
		return d
	}
	if int64(d) > math.MaxInt64/n {
		return time.Duration(math.MaxInt64)
	}
	return d * time.Duration(n)
}

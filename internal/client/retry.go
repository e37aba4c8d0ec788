package client

import (
	"context"
	"time"

	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
)

// RetryOptions - параметры Retry. Нулевые значения заменяются дефолтами.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OnRetry вызывается перед ожиданием очередной попытки.
	OnRetry func(attempt int, err *apierrors.AppError)
	// OnMaxAttemptsReached вызывается, когда попытки кончились на повторяемой ошибке.
	OnMaxAttemptsReached func(err *apierrors.AppError)
	// Component - имя операции в AppError.Context.
	Component string
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = apierrors.DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = apierrors.DefaultMaxDelay
	}

	return o
}

// Retry выполняет op последовательно до успеха, неповторяемой ошибки
// или исчерпания попыток. Возвращается исходная ошибка op.
//
// Между попытками - min(BaseDelay·2^(attempt-1), MaxDelay); ожидание
// прерывается отменой ctx.
func Retry[T any](ctx context.Context, c *apierrors.Classifier, opts RetryOptions, op func(ctx context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()
	if c == nil {
		c = apierrors.NewClassifier()
	}

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		appErr := c.ClassifyFromAPIResponse(ctx, apierrors.FromError(err), apierrors.ErrorContext{
			Component: opts.Component,
		})
		if !apierrors.IsRetryable(appErr) {
			return zero, err
		}
		if attempt >= opts.MaxAttempts {
			if opts.OnMaxAttemptsReached != nil {
				opts.OnMaxAttemptsReached(appErr)
			}
			return zero, err
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, appErr)
		}

		if err := sleep(ctx, apierrors.Backoff(attempt, opts.BaseDelay, opts.MaxDelay)); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

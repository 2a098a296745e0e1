/*-------------------------------------------------------------------------
 *
 * retry.go
 *    Retry policy for outbound dispatch attempts
 *
 * Provides exponential backoff retries for transient executor errors.
 * The circuit breaker, not this policy, decides whether an attempt may
 * start at all.
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/resilience/retry.go
 *
 *-------------------------------------------------------------------------
 */

package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

/* RetryConfig defines retry behavior for dispatch attempts */
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	IsRetryable  func(error) bool
}

/* DefaultRetryConfig returns default retry configuration */
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		IsRetryable:  IsRetryableError,
	}
}

/* IsRetryableError checks if an error is transient. Dispatch timeouts
 * count as retryable, not as a distinct terminal state. */
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"connection",
		"temporary",
		"network",
		"503",
		"502",
		"504",
		"429",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

/* Backoff returns the delay before the given retry attempt:
 * min(initial * multiplier^attempt, max) */
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.Multiplier
		if time.Duration(delay) >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	d := time.Duration(delay)
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

/* Retry executes fn with retry logic. Every attempt the breaker allowed
 * feeds its outcome into the breaker via the caller; this function only
 * sequences attempts and delays. */
func Retry(ctx context.Context, config RetryConfig, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !config.IsRetryable(err) {
			return err
		}
		if attempt == config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.Backoff(attempt)):
		}
	}

	return fmt.Errorf("dispatch failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}

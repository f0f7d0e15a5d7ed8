// Package testing provides test helpers for the croft application.
//
// Using t.Fatal or t.FailNow in a goroutine causes the test to hang because
// these functions call runtime.Goexit(), which only exits the current
// goroutine, not the test goroutine. The helpers here use the error channel
// pattern instead.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest collects errors from test goroutines.
//
// Example usage:
//
//	func TestConcurrentOperations(t *testing.T) {
//	    gt := testing.NewGoroutineTest(t)
//	    defer gt.Wait()
//
//	    gt.Go(func() error {
//	        result, err := someOperation()
//	        if err != nil {
//	            return fmt.Errorf("operation failed: %w", err)
//	        }
//	        if result != expected {
//	            return fmt.Errorf("got %v, want %v", result, expected)
//	        }
//	        return nil
//	    })
//	}
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100), // buffered to avoid blocking
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs a function in a goroutine and collects any error it returns.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			select {
			case gt.errors <- err:
			default:
				gt.t.Logf("Error channel full, dropping error: %v", err)
			}
		}
	}()
}

// GoWithContext runs a function with the test context in a goroutine.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			select {
			case gt.errors <- err:
			case <-gt.ctx.Done():
			}
		}
	}()
}

// Wait waits for all goroutines and fails the test if any errored.
// Call it with defer right after creating the GoroutineTest.
func (gt *GoroutineTest) Wait() {
	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		gt.t.Errorf("Goroutine test failed with %d error(s):", len(errs))
		for i, err := range errs {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}

// Context returns the context for this test.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// Cancel cancels the context, signaling goroutines to stop.
func (gt *GoroutineTest) Cancel() {
	gt.cancel()
}

// =============================================================================
// Assertion Helpers
// =============================================================================

// AssertEqual returns an error if got != want.
func AssertEqual[T comparable](got, want T, msg string) error {
	if got != want {
		return fmt.Errorf("%s: got %v, want %v", msg, got, want)
	}
	return nil
}

// AssertNoError returns an error if err is not nil.
func AssertNoError(err error, msg string) error {
	if err != nil {
		return fmt.Errorf("%s: unexpected error: %w", msg, err)
	}
	return nil
}

// AssertError returns an error if err is nil.
func AssertError(err error, msg string) error {
	if err == nil {
		return fmt.Errorf("%s: expected error, got nil", msg)
	}
	return nil
}

// =============================================================================
// Timing Helpers
// =============================================================================

// WithTimeout runs a function with a timeout.
//
// Example:
//
//	err := testing.WithTimeout(5*time.Second, func() error {
//	    // long running operation
//	    return nil
//	})
func WithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// Retry retries a function until it succeeds or max attempts is reached.
//
// Example:
//
//	err := testing.Retry(3, 100*time.Millisecond, func() error {
//	    return checkCondition()
//	})
func Retry(maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if err := fn(); err != nil {
			lastErr = err
			time.Sleep(delay)
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

// Eventually waits for a condition to become true.
//
// Example:
//
//	err := testing.Eventually(5*time.Second, 100*time.Millisecond, func() bool {
//	    return server.IsReady()
//	})
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}

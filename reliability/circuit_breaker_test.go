package reliability

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/priomq/priomq-go/contracts"
)

func TestCircuitBreaker(t *testing.T) {
	t.Run("starts in closed state", func(t *testing.T) {
		cb := NewCircuitBreaker()
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("executes function in closed state", func(t *testing.T) {
		cb := NewCircuitBreaker()
		executed := false

		err := cb.Execute(context.Background(), func() error {
			executed = true
			return nil
		})

		assert.NoError(t, err)
		assert.True(t, executed)
	})

	t.Run("transitions to open state after failure threshold", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(3))

		for i := 0; i < 3; i++ {
			err := cb.Execute(context.Background(), func() error {
				return errors.New("test error")
			})
			assert.Error(t, err)
		}

		assert.Equal(t, StateOpen, cb.GetState())

		// Open state short-circuits without invoking the function
		invoked := false
		err := cb.Execute(context.Background(), func() error {
			invoked = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, invoked)

		var cbErr *CircuitBreakerError
		assert.ErrorAs(t, err, &cbErr)
		assert.Equal(t, StateOpen, cbErr.State)
		assert.Equal(t, contracts.ErrorKindCircuitOpen, cbErr.Kind())
		assert.False(t, cbErr.IsRetryable())
	})

	t.Run("success in closed state resets consecutive failures", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(3))

		cb.Execute(context.Background(), func() error { return errors.New("one") })
		cb.Execute(context.Background(), func() error { return errors.New("two") })
		cb.Execute(context.Background(), func() error { return nil })

		failures, _, _ := cb.GetStats()
		assert.Equal(t, 0, failures)
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("single probe succeeds and closes the circuit", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(1),
			WithOpenTimeout(50*time.Millisecond),
		)

		cb.Execute(context.Background(), func() error {
			return errors.New("test error")
		})
		assert.Equal(t, StateOpen, cb.GetState())

		time.Sleep(80 * time.Millisecond)

		executed := false
		err := cb.Execute(context.Background(), func() error {
			executed = true
			return nil
		})

		assert.NoError(t, err)
		assert.True(t, executed)
		assert.Equal(t, StateClosed, cb.GetState())

		failures, _, _ := cb.GetStats()
		assert.Equal(t, 0, failures)
	})

	t.Run("probe failure reopens and restarts the cool-down", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(1),
			WithOpenTimeout(60*time.Millisecond),
		)

		cb.Execute(context.Background(), func() error {
			return errors.New("test error")
		})

		time.Sleep(90 * time.Millisecond)

		err := cb.Execute(context.Background(), func() error {
			return errors.New("probe failed")
		})
		assert.Error(t, err)
		assert.Equal(t, StateOpen, cb.GetState())

		// The failed probe reset lastFailureTime, so the breaker is still
		// short-circuiting before a full cool-down elapses again.
		invoked := false
		err = cb.Execute(context.Background(), func() error {
			invoked = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, invoked)
	})

	t.Run("cancelled context does not consume the probe slot", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(1),
			WithOpenTimeout(50*time.Millisecond),
		)

		cb.Execute(context.Background(), func() error {
			return errors.New("test error")
		})
		assert.Equal(t, StateOpen, cb.GetState())

		time.Sleep(80 * time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		invoked := false
		err := cb.Execute(ctx, func() error {
			invoked = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, invoked)
		assert.Equal(t, StateOpen, cb.GetState())

		// The cool-down already elapsed, so a healthy probe still gets
		// through and closes the circuit.
		err = cb.Execute(context.Background(), func() error { return nil })
		assert.NoError(t, err)
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("panicking function counts as a failure", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(1))

		assert.Panics(t, func() {
			cb.Execute(context.Background(), func() error {
				panic("boom")
			})
		})
		assert.Equal(t, StateOpen, cb.GetState())
		assert.Equal(t, int64(1), cb.GetMetrics().TotalFailures)
	})

	t.Run("exactly one probe is allowed in half-open state", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(1),
			WithOpenTimeout(50*time.Millisecond),
		)

		cb.Execute(context.Background(), func() error {
			return errors.New("test error")
		})

		time.Sleep(80 * time.Millisecond)

		release := make(chan struct{})
		var started sync.WaitGroup
		started.Add(1)

		// Hold the probe open
		go func() {
			cb.Execute(context.Background(), func() error {
				started.Done()
				<-release
				return nil
			})
		}()
		started.Wait()

		// A second call while the probe is in flight is rejected
		invoked := false
		err := cb.Execute(context.Background(), func() error {
			invoked = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, invoked)

		close(release)
	})

	t.Run("half-open closes after configured success threshold", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(1),
			WithSuccessThreshold(2),
			WithHalfOpenRequests(2),
			WithOpenTimeout(50*time.Millisecond),
		)

		cb.Execute(context.Background(), func() error {
			return errors.New("test error")
		})

		time.Sleep(80 * time.Millisecond)

		for i := 0; i < 2; i++ {
			err := cb.Execute(context.Background(), func() error {
				return nil
			})
			assert.NoError(t, err)
		}

		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("Reset clears state", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(1))

		cb.Execute(context.Background(), func() error {
			return errors.New("test error")
		})
		assert.Equal(t, StateOpen, cb.GetState())

		cb.Reset()

		assert.Equal(t, StateClosed, cb.GetState())
		failures, successes, _ := cb.GetStats()
		assert.Equal(t, 0, failures)
		assert.Equal(t, 0, successes)
	})

	t.Run("context cancellation", func(t *testing.T) {
		cb := NewCircuitBreaker()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := cb.Execute(ctx, func() error {
			return nil
		})

		assert.Equal(t, context.Canceled, err)
	})

	t.Run("notifies state change listeners", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(1), WithName("downstream"))

		transitions := make(chan string, 4)
		cb.AddListener(stateListenerFunc(func(from, to State, reason string) {
			transitions <- from.String() + "->" + to.String()
		}))

		cb.Execute(context.Background(), func() error {
			return errors.New("test error")
		})

		select {
		case tr := <-transitions:
			assert.Equal(t, "closed->open", tr)
		case <-time.After(time.Second):
			t.Fatal("expected a state change notification")
		}
	})

	t.Run("concurrent execution", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(1000),
		)

		var wg sync.WaitGroup
		errorCount := int32(0)
		successCount := int32(0)

		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := cb.Execute(context.Background(), func() error {
					if i%3 == 0 {
						return errors.New("concurrent error")
					}
					return nil
				})
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
				} else {
					atomic.AddInt32(&successCount, 1)
				}
			}(i)
		}

		wg.Wait()

		assert.True(t, atomic.LoadInt32(&errorCount) > 0)
		assert.True(t, atomic.LoadInt32(&successCount) > 0)
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("GetMetrics reflects totals", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(10), WithName("metrics"))

		cb.Execute(context.Background(), func() error { return nil })
		cb.Execute(context.Background(), func() error { return errors.New("boom") })

		m := cb.GetMetrics()
		assert.Equal(t, "metrics", m.Name)
		assert.Equal(t, int64(2), m.TotalRequests)
		assert.Equal(t, int64(1), m.TotalFailures)
		assert.Equal(t, int64(1), m.TotalSuccesses)
	})
}

func TestCircuitBreakerOptions(t *testing.T) {
	t.Run("applies all options", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(10),
			WithSuccessThreshold(5),
			WithOpenTimeout(1*time.Minute),
			WithHalfOpenRequests(10),
			WithName("payment-gateway"),
		)

		assert.Equal(t, 10, cb.failureThreshold)
		assert.Equal(t, 5, cb.successThreshold)
		assert.Equal(t, 1*time.Minute, cb.openTimeout)
		assert.Equal(t, 10, cb.halfOpenRequests)
		assert.Equal(t, "payment-gateway", cb.Name())
	})

	t.Run("defaults allow exactly one closing probe", func(t *testing.T) {
		cb := NewCircuitBreaker()

		assert.Equal(t, 5, cb.failureThreshold)
		assert.Equal(t, 1, cb.successThreshold)
		assert.Equal(t, 30*time.Second, cb.openTimeout)
		assert.Equal(t, 1, cb.halfOpenRequests)
	})
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

// stateListenerFunc adapts a function to StateChangeListener.
type stateListenerFunc func(from, to State, reason string)

func (f stateListenerFunc) OnStateChange(from, to State, reason string) {
	f(from, to, reason)
}

func BenchmarkCircuitBreaker(b *testing.B) {
	ctx := context.Background()

	b.Run("successful execution", func(b *testing.B) {
		cb := NewCircuitBreaker()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			cb.Execute(ctx, func() error {
				return nil
			})
		}
	})

	b.Run("concurrent execution", func(b *testing.B) {
		cb := NewCircuitBreaker()
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				cb.Execute(ctx, func() error {
					return nil
				})
			}
		})
	})
}

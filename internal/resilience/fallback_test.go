package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func newGroup(names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour, Logger: quiet},
	})
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

func TestFallbackGroup_Order(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		failing []string
		want    string
	}{
		{"primary succeeds", nil, "primary"},
		{"primary fails", []string{"primary"}, "secondary"},
		{"two fail", []string{"primary", "secondary"}, "tertiary"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fg := newGroup("primary", "secondary", "tertiary")
			got, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, v string) (string, error) {
				if slices.Contains(tc.failing, v) {
					return "", errTest
				}
				return v, nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("served by %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()

	fg := newGroup("primary", "secondary")
	err := fg.Execute(context.Background(), func(context.Context, string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, want it to wrap the last provider error", err)
	}
}

func TestFallbackGroup_SingleEntryKeepsError(t *testing.T) {
	t.Parallel()

	fg := newGroup("only")
	err := fg.Execute(context.Background(), func(context.Context, string) error { return errTest })
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, want errTest", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, single provider should not report ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsOpenProvider(t *testing.T) {
	t.Parallel()

	fg := newGroup("primary", "secondary")
	var primaryCalls int
	call := func(_ context.Context, v string) (string, error) {
		if v == "primary" {
			primaryCalls++
			return "", errTest
		}
		return v, nil
	}
	for range 2 {
		_, _ = ExecuteWithResult(context.Background(), fg, call)
	}
	if got := fg.Breaker("primary").State(); got != StateOpen {
		t.Fatalf("primary breaker = %v, want open", got)
	}

	got, err := ExecuteWithResult(context.Background(), fg, call)
	if err != nil || got != "secondary" {
		t.Fatalf("got %q, %v; want secondary", got, err)
	}
	if primaryCalls != 2 {
		t.Errorf("primary called %d times, want 2 (skipped while open)", primaryCalls)
	}
}

func TestFallbackGroup_StopsWhenContextDone(t *testing.T) {
	t.Parallel()

	fg := newGroup("primary", "secondary")
	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	err := fg.Execute(ctx, func(_ context.Context, v string) error {
		calls = append(calls, v)
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if !slices.Equal(calls, []string{"primary"}) {
		t.Errorf("calls = %v, want only primary", calls)
	}
	if got := fg.Breaker("primary").State(); got != StateClosed {
		t.Errorf("primary breaker = %v, cancellation must not count", got)
	}
}

func TestFallbackGroup_NamesAndBreaker(t *testing.T) {
	t.Parallel()

	fg := newGroup("a", "b")
	if got := fg.Names(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v", got)
	}
	if fg.Breaker("missing") != nil {
		t.Error("Breaker(missing) should be nil")
	}
}

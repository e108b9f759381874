package backoff

import (
	"testing"
	"time"
)

func TestConstant(t *testing.T) {
	t.Parallel()

	c := NewConstant(2 * time.Second)
	for _, attempt := range []int{1, 2, 10} {
		if d := c.Delay(attempt); d != 2*time.Second {
			t.Fatalf("Delay(%d) = %v, want 2s", attempt, d)
		}
	}
}

func TestExponential(t *testing.T) {
	t.Parallel()

	e := NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Fatalf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitterBounds(t *testing.T) {
	t.Parallel()

	e := NewExponentialWithJitter(time.Second, 8*time.Second)

	for attempt := 1; attempt <= 6; attempt++ {
		max := time.Duration(float64(time.Second) * float64(int(1)<<(attempt-1)))
		if max > 8*time.Second {
			max = 8 * time.Second
		}
		for i := 0; i < 50; i++ {
			d := e.Delay(attempt)
			if d < 0 || d > max {
				t.Fatalf("Delay(%d) = %v, want in [0, %v]", attempt, d, max)
			}
		}
	}
}

func TestDefaultStrategy(t *testing.T) {
	t.Parallel()

	s := DefaultStrategy()
	if d := s.Delay(1); d < 0 || d > time.Second {
		t.Fatalf("Delay(1) = %v, want in [0, 1s]", d)
	}
}

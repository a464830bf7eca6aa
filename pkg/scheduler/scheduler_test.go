package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestValidateSpec(t *testing.T) {
	valid := []string{
		"* * * * *",
		"*/5 * * * *",
		"0 3 * * *",
		"30 4 1 * 1",
		"@hourly",
	}
	for _, spec := range valid {
		if err := ValidateSpec(spec); err != nil {
			t.Errorf("ValidateSpec(%q): %v", spec, err)
		}
	}

	invalid := []string{
		"",
		"not a schedule",
		"* * * *",
		"0 0 * * * *",
		"61 * * * *",
	}
	for _, spec := range invalid {
		if err := ValidateSpec(spec); err == nil {
			t.Errorf("ValidateSpec(%q): expected error", spec)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	var calls atomic.Int64
	s := New("@hourly", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if calls.Load() != 0 {
		t.Errorf("hourly job should not have fired, got %d calls", calls.Load())
	}
}

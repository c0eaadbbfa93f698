package notifications_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zonia3000/regifair/internal/notifications"
)

type scriptedNotifier struct {
	errs  []error
	calls int
}

func (s *scriptedNotifier) Send(_ context.Context, _ notifications.Notification) error {
	var err error

	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}

	s.calls++
	return err
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("provider down")

	inner := &scriptedNotifier{errs: []error{boom, boom, boom}}

	n := notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		FailureThreshold: 3,
		Cooldown:         time.Hour,
	})

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := n.Send(ctx, notifications.Notification{}); !errors.Is(err, boom) {
			t.Fatalf("send %d: got %v", i, err)
		}
	}

	if err := n.Send(ctx, notifications.Notification{}); !errors.Is(err, notifications.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	if inner.calls != 3 {
		t.Fatalf("inner called %d times, want 3", inner.calls)
	}
}

func TestCircuitClosesAfterSuccessfulTrial(t *testing.T) {
	boom := errors.New("provider down")

	inner := &scriptedNotifier{errs: []error{boom, nil, nil}}

	n := notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
	})

	ctx := context.Background()

	if err := n.Send(ctx, notifications.Notification{}); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}

	if err := n.Send(ctx, notifications.Notification{}); !errors.Is(err, notifications.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	// half-open trial succeeds, circuit closes again
	if err := n.Send(ctx, notifications.Notification{}); err != nil {
		t.Fatalf("trial send failed: %v", err)
	}

	if err := n.Send(ctx, notifications.Notification{}); err != nil {
		t.Fatalf("closed circuit send failed: %v", err)
	}
}

package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LogNotifier is the default delivery backend: it records what would have
// been mailed. A real SMTP/provider integration plugs in behind the same
// interface.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, in Notification) error {
	// Optional: simulate slow provider
	if msStr := os.Getenv("NOTIFIER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Optional: simulate provider outage
	if os.Getenv("NOTIFIER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	n.log.Info("notification",
		"kind", in.Kind,
		"event", in.EventID,
		"registration", in.RegistrationID,
		"admin_email", in.AdminEmail,
		"addresses", strings.Join(in.Addresses, ","),
		"waiting_list", in.WaitingList,
	)
	return nil
}

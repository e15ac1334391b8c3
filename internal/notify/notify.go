// Package notify delivers "a correction is waiting for review" pings to
// the household admins. Delivery is strictly best-effort: the learning
// pipeline treats a failed notification as a warning, never as a failed
// correction, so implementations should be cheap and must not block for
// long.
package notify

import (
	"context"
	"time"
)

// ReviewNotification describes one correction awaiting admin review.
type ReviewNotification struct {
	CorrectionID string
	UserID       string
	Content      string
	SubmittedAt  time.Time
}

// Notifier pushes review notifications to wherever the admins are.
type Notifier interface {
	ReviewRequested(ctx context.Context, n ReviewNotification) error
}

// Noop discards every notification. It is the default channel.
type Noop struct{}

// ReviewRequested implements Notifier.
func (Noop) ReviewRequested(context.Context, ReviewNotification) error {
	return nil
}

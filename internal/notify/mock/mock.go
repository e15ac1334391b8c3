// Package mock provides a test double for the notify.Notifier interface.
package mock

import (
	"context"
	"sync"

	"github.com/foyerlabs/foyer/internal/notify"
)

var _ notify.Notifier = (*Notifier)(nil)

// Notifier is a mock notify.Notifier. Configure the exported fields before
// use; calls are recorded for later inspection. Notifier is safe for
// concurrent use.
type Notifier struct {
	mu sync.Mutex

	// Err is returned by ReviewRequested.
	Err error

	// Notifications records each ReviewRequested call in order.
	Notifications []notify.ReviewNotification
}

// ReviewRequested implements notify.Notifier.
func (n *Notifier) ReviewRequested(ctx context.Context, rn notify.ReviewNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.Notifications = append(n.Notifications, rn)
	return n.Err
}

// CallCount returns the number of ReviewRequested calls made so far.
func (n *Notifier) CallCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Notifications)
}

// Last returns the most recent notification, or the zero value when none
// was recorded.
func (n *Notifier) Last() notify.ReviewNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Notifications) == 0 {
		return notify.ReviewNotification{}
	}
	return n.Notifications[len(n.Notifications)-1]
}

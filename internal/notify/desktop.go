package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
	"unicode/utf8"
)

// desktopTimeout bounds one notify-send invocation.
const desktopTimeout = 5 * time.Second

// desktopSummary is the notification title.
const desktopSummary = "Foyer — Learning Review"

// Desktop sends notifications through the freedesktop notify-send tool.
// When the binary is not installed the notifier logs a warning and
// reports success, so a headless deployment works unchanged.
type Desktop struct {
	command string
}

// DesktopOption configures a Desktop notifier.
type DesktopOption func(*Desktop)

// WithCommand overrides the notification binary (default notify-send).
func WithCommand(cmd string) DesktopOption {
	return func(d *Desktop) {
		if cmd != "" {
			d.command = cmd
		}
	}
}

// NewDesktop builds a notify-send backed notifier.
func NewDesktop(opts ...DesktopOption) *Desktop {
	d := &Desktop{command: "notify-send"}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ReviewRequested implements Notifier.
func (d *Desktop) ReviewRequested(ctx context.Context, n ReviewNotification) error {
	if _, err := exec.LookPath(d.command); err != nil {
		slog.Warn("notify: command not available, skipping notification",
			"command", d.command)
		return nil
	}

	body := fmt.Sprintf("Correction de %s en attente d'approbation: %q. Run: foyer-review list",
		n.UserID, truncate(n.Content, 80))

	ctx, cancel := context.WithTimeout(ctx, desktopTimeout)
	defer cancel()
	if err := exec.CommandContext(ctx, d.command, desktopSummary, body).Run(); err != nil {
		return fmt.Errorf("notify: %s: %w", d.command, err)
	}
	return nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

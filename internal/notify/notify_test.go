package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/foyerlabs/foyer/internal/notify"
)

func sampleNotification() notify.ReviewNotification {
	return notify.ReviewNotification{
		CorrectionID: "c7a1",
		UserID:       "teen",
		Content:      "le bus scolaire passe à 8h10",
		SubmittedAt:  time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC),
	}
}

func TestNoop(t *testing.T) {
	t.Parallel()

	if err := (notify.Noop{}).ReviewRequested(context.Background(), sampleNotification()); err != nil {
		t.Errorf("Noop.ReviewRequested: %v", err)
	}
}

func TestDesktopMissingBinaryIsSoft(t *testing.T) {
	t.Parallel()

	d := notify.NewDesktop(notify.WithCommand("foyer-test-no-such-binary"))
	if err := d.ReviewRequested(context.Background(), sampleNotification()); err != nil {
		t.Errorf("missing binary must not fail the pipeline: %v", err)
	}
}

func TestDesktopRunsCommand(t *testing.T) {
	t.Parallel()

	d := notify.NewDesktop(notify.WithCommand("true"))
	if err := d.ReviewRequested(context.Background(), sampleNotification()); err != nil {
		t.Errorf("ReviewRequested: %v", err)
	}
}

func TestDesktopCommandFailure(t *testing.T) {
	t.Parallel()

	d := notify.NewDesktop(notify.WithCommand("false"))
	if err := d.ReviewRequested(context.Background(), sampleNotification()); err == nil {
		t.Error("ReviewRequested succeeded with a failing command")
	}
}

func TestNewDiscordValidation(t *testing.T) {
	t.Parallel()

	if _, err := notify.NewDiscord("", "channel"); err == nil {
		t.Error("NewDiscord accepted an empty token")
	}
	if _, err := notify.NewDiscord("token", ""); err == nil {
		t.Error("NewDiscord accepted an empty channel id")
	}
	if _, err := notify.NewDiscord("token", "channel"); err != nil {
		t.Errorf("NewDiscord: %v", err)
	}
}

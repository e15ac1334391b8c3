package app_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/foyerlabs/foyer/internal/app"
)

// waitForAddr polls until the service has bound its listener.
func waitForAddr(t *testing.T, svc *app.Service) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if addr := svc.Addr(); addr != "" {
			return addr
		}
		if time.Now().After(deadline) {
			t.Fatal("service never bound its listener")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServiceServesUntilCancelled(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pong")
	})
	svc := app.New("test-svc", "127.0.0.1:0", handler)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	addr := waitForAddr(t, svc)
	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Fatalf("body = %q, want %q", body, "pong")
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Second)
	defer cancelShutdown()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestShutdownRunsClosersInOrder(t *testing.T) {
	t.Parallel()

	svc := app.New("test-svc", "127.0.0.1:0", http.NotFoundHandler())

	var order []string
	svc.OnClose("first", func() error {
		order = append(order, "first")
		return nil
	})
	svc.OnClose("second", func() error {
		order = append(order, "second")
		return errors.New("second failed")
	})
	svc.OnClose("third", func() error {
		order = append(order, "third")
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("closers ran = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("closers ran = %v, want %v", order, want)
		}
	}

	// A second Shutdown must not run the closers again.
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("closers ran %d times after double shutdown", len(order))
	}
}

func TestShutdownSkipsClosersPastDeadline(t *testing.T) {
	t.Parallel()

	svc := app.New("test-svc", "127.0.0.1:0", http.NotFoundHandler())

	called := false
	svc.OnClose("never", func() error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Shutdown(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Shutdown with cancelled ctx = %v, want context.Canceled", err)
	}
	if called {
		t.Fatal("closer ran despite expired shutdown context")
	}
}

func TestRunReportsListenFailure(t *testing.T) {
	t.Parallel()

	// Occupy a port so the service cannot bind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	svc := app.New("test-svc", ln.Addr().String(), http.NotFoundHandler())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run on an occupied port succeeded")
	}
}

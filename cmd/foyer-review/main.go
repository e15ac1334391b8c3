// Command foyer-review is the admin CLI for the learning queue: list
// corrections awaiting review, inspect one, and approve or reject it.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/foyerlabs/foyer/internal/learning"
)

func main() {
	os.Exit(run())
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: foyer-review [flags] <command>

Commands:
  list                      corrections awaiting review
  show <id>                 full detail of one correction
  approve <id>              approve and commit to memory
  reject <id> -reason ...   reject with a reason

Flags:
`)
	flag.PrintDefaults()
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	addr := flag.String("addr", "http://localhost:10003", "learning service base URL")
	caller := flag.String("caller", "dad", "admin id performing the review")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &reviewClient{
		baseURL:    strings.TrimRight(*addr, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	var err error
	switch cmd := args[0]; cmd {
	case "list":
		err = runList(ctx, client)
	case "show":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "foyer-review: show needs a correction id")
			return 2
		}
		err = runShow(ctx, client, args[1])
	case "approve":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "foyer-review: approve needs a correction id")
			return 2
		}
		err = runApprove(ctx, client, args[1], *caller)
	case "reject":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "foyer-review: reject needs a correction id")
			return 2
		}
		fs := flag.NewFlagSet("reject", flag.ExitOnError)
		reason := fs.String("reason", "", "why the correction is rejected (required)")
		fs.Parse(args[2:])
		if *reason == "" {
			fmt.Fprintln(os.Stderr, "foyer-review: reject needs -reason")
			return 2
		}
		err = runReject(ctx, client, args[1], *caller, *reason)
	default:
		fmt.Fprintf(os.Stderr, "foyer-review: unknown command %q\n", cmd)
		usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "foyer-review: %v\n", err)
		return 1
	}
	return 0
}

// ── Commands ──────────────────────────────────────────────────────────────────

func runList(ctx context.Context, client *reviewClient) error {
	doc, err := client.pending(ctx)
	if err != nil {
		return err
	}
	if doc.Count == 0 {
		fmt.Println("No corrections awaiting review.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tSUBMITTED\tCONTENT")
	for _, item := range doc.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			item.ID, item.UserID, localTime(item.SubmittedAt), truncate(item.Content, 60))
	}
	w.Flush()
	fmt.Printf("\n%d correction(s) awaiting review.\n", doc.Count)
	return nil
}

func runShow(ctx context.Context, client *reviewClient, id string) error {
	c, err := client.status(ctx, id)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", c.ID)
	fmt.Fprintf(w, "User:\t%s\n", c.UserID)
	fmt.Fprintf(w, "Status:\t%s\n", c.FinalStatus)
	fmt.Fprintf(w, "Source:\t%s\n", c.Source)
	fmt.Fprintf(w, "Submitted:\t%s\n", localTime(c.SubmittedAt))
	if c.PersonalInfo {
		fmt.Fprintf(w, "Personal info:\tyes (external check skipped)\n")
	}
	fmt.Fprintf(w, "Content:\t%s\n", c.Content)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Gate 1 (relevance):\t%s\n", gateLine(c.Gate1))
	fmt.Fprintf(w, "Gate 2a (confidence):\t%s\n", gateLine(c.Gate2A))
	fmt.Fprintf(w, "Gate 2b (external):\t%s\n", gateLine(c.Gate2B))
	fmt.Fprintf(w, "Gate 3 (review):\t%s\n", reviewLine(c.Gate3))
	if c.MemoryID != "" {
		fmt.Fprintf(w, "Memory:\t%s (applied %s)\n", c.MemoryID, localTime(c.AppliedAt))
	}
	return w.Flush()
}

func runApprove(ctx context.Context, client *reviewClient, id, caller string) error {
	doc, err := client.review(ctx, id, "approve", caller, "")
	if err != nil {
		return err
	}
	if doc.MemoryID != "" {
		fmt.Printf("Correction %s applied — memory %s written.\n", doc.ID, doc.MemoryID)
	} else {
		fmt.Printf("Correction %s approved, but the memory commit failed; check foyer-llm.\n", doc.ID)
	}
	return nil
}

func runReject(ctx context.Context, client *reviewClient, id, caller, reason string) error {
	doc, err := client.review(ctx, id, "reject", caller, reason)
	if err != nil {
		return err
	}
	fmt.Printf("Correction %s rejected: %s\n", doc.ID, doc.Reason)
	return nil
}

// ── Rendering helpers ─────────────────────────────────────────────────────────

func localTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func gateLine(g *learning.GateResult) string {
	if g == nil {
		return "not reached"
	}
	line := g.Status
	if g.Confidence != nil {
		line += fmt.Sprintf(" (confidence %.2f)", *g.Confidence)
	}
	if g.Reason != "" {
		line += " — " + g.Reason
	}
	return line
}

func reviewLine(g *learning.Gate3Details) string {
	if g == nil {
		return "not reached"
	}
	switch g.Status {
	case learning.ReviewApproved:
		return fmt.Sprintf("approved by %s at %s", g.Reviewer, localTime(g.ReviewedAt))
	case learning.ReviewRejected:
		return fmt.Sprintf("rejected by %s at %s — %s", g.Reviewer, localTime(g.ReviewedAt), g.RejectReason)
	default:
		return "pending since " + localTime(g.SubmittedAt)
	}
}

// ── HTTP client ───────────────────────────────────────────────────────────────

// reviewClient is a thin client over the learning service's review API.
type reviewClient struct {
	baseURL    string
	httpClient *http.Client
}

type pendingDoc struct {
	Count int `json:"count"`
	Items []struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		Content     string    `json:"content"`
		SubmittedAt time.Time `json:"submitted_at"`
	} `json:"items"`
}

type reviewDoc struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	MemoryID string `json:"memory_id"`
	Reason   string `json:"reason"`
}

func (c *reviewClient) pending(ctx context.Context) (*pendingDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/learning/pending", nil)
	if err != nil {
		return nil, err
	}
	var doc pendingDoc
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *reviewClient) status(ctx context.Context, id string) (*learning.Correction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/learning/status/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var doc learning.Correction
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *reviewClient) review(ctx context.Context, id, action, caller, reason string) (*reviewDoc, error) {
	payload, err := json.Marshal(map[string]string{
		"action":    action,
		"caller_id": caller,
		"reason":    reason,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/learning/review/"+url.PathEscape(id), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var doc reviewDoc
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// do executes req and decodes the JSON reply into out. Non-200 replies are
// turned into errors carrying the service's own message when it sent one.
func (c *reviewClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			if e.Detail != "" {
				return fmt.Errorf("%s (%s)", e.Error, e.Detail)
			}
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("learning service returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

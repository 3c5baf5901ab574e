package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Summary is what a finished run reports. batch.Summary satisfies it.
type Summary interface {
	String() string
	Clean() bool
}

// Message is one ntfy publish. Empty fields are not sent.
type Message struct {
	Title    string
	Body     string
	Tags     []string
	Priority string
}

// SendSummary posts a one-line run summary to an ntfy topic URL. Runs with
// failures or an interrupt are published at high priority.
func SendSummary(ctx context.Context, client *http.Client, endpoint, run string, sum Summary) error {
	msg := Message{
		Title: "replay recorder",
		Body:  fmt.Sprintf("replay recorder %s finished: %s", run, sum),
		Tags:  []string{"white_check_mark"},
	}
	if !sum.Clean() {
		msg.Tags = []string{"warning"}
		msg.Priority = "high"
	}
	return Send(ctx, client, endpoint, msg)
}

// Send publishes msg to endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint string, msg Message) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("ntfy endpoint is empty")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Priority != "" {
		req.Header.Set("Priority", msg.Priority)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

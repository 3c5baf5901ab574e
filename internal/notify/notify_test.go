package notify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type fixedSummary struct {
	text  string
	clean bool
}

func (s fixedSummary) String() string { return s.text }
func (s fixedSummary) Clean() bool    { return s.clean }

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     make(http.Header),
	}
}

func TestSendSummaryPostsCompletionMessage(t *testing.T) {
	var got *http.Request
	var body string
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			got, body = r, string(raw)
			return okResponse(), nil
		}),
	}

	sum := fixedSummary{text: "3 completed, 1 skipped, 0 failed, 0 excluded, 0 not attempted of 4", clean: true}
	if err := SendSummary(context.Background(), client, "http://example.com/recorder", "batch", sum); err != nil {
		t.Fatalf("SendSummary() error = %v", err)
	}

	if got.Method != http.MethodPost || got.URL.Path != "/recorder" {
		t.Fatalf("request = %s %s; want POST /recorder", got.Method, got.URL.Path)
	}
	if want := "replay recorder batch finished: " + sum.text; body != want {
		t.Fatalf("body = %q; want %q", body, want)
	}
	if tags := got.Header.Get("Tags"); tags != "white_check_mark" {
		t.Fatalf("Tags = %q; want white_check_mark", tags)
	}
	if p := got.Header.Get("Priority"); p != "" {
		t.Fatalf("Priority = %q; want unset for a clean run", p)
	}
}

func TestSendSummaryRaisesPriorityOnFailures(t *testing.T) {
	var got *http.Request
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			got = r
			return okResponse(), nil
		}),
	}

	sum := fixedSummary{text: "1 completed, 0 skipped, 2 failed, 0 excluded, 0 not attempted of 3"}
	if err := SendSummary(context.Background(), client, "http://example.com/recorder", "batch", sum); err != nil {
		t.Fatalf("SendSummary() error = %v", err)
	}
	if got.Header.Get("Priority") != "high" || got.Header.Get("Tags") != "warning" {
		t.Fatalf("headers = %v; want high priority warning", got.Header)
	}
}

func TestSendReturnsErrorForServerError(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	err := Send(context.Background(), client, "http://example.com/recorder", Message{Body: "done"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ntfy notification failed") {
		t.Fatalf("error = %q; want to contain %q", err, "ntfy notification failed")
	}
}

func TestSendDisallowsMissingEndpoint(t *testing.T) {
	if err := Send(context.Background(), http.DefaultClient, " ", Message{Body: "done"}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"email-automation/internal/ratelimit"
)

type pacerConfig struct {
	base    time.Duration
	retries int
	factor  float64
}

func (c pacerConfig) GetBaseDelay() time.Duration { return c.base }
func (c pacerConfig) GetMaxRetries() int          { return c.retries }
func (c pacerConfig) GetBackoffFactor() float64   { return c.factor }

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient stands up an httptest server speaking just enough of the
// Gmail REST surface for the handler under test, with fast pacing so retry
// tests stay quick.
func newTestClient(t *testing.T, retries int, handler http.HandlerFunc) *Client {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	service, err := gmailapi.NewService(context.Background(),
		option.WithEndpoint(ts.URL),
		option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("create service: %v", err)
	}

	pacer := ratelimit.NewPacer(pacerConfig{base: time.Millisecond, retries: retries, factor: 2.0})
	return NewClient(service, "me", pacer, slogDiscard())
}

func writeAPIError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, code, message)
}

func TestClient_ListMessages(t *testing.T) {
	var gotQuery, gotMax, gotToken string
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotMax = r.URL.Query().Get("maxResults")
		gotToken = r.URL.Query().Get("pageToken")
		fmt.Fprint(w, `{"messages":[{"id":"m1","threadId":"t1"},{"id":"m2","threadId":"t2"}],"nextPageToken":"tok-2"}`)
	})

	page, err := client.ListMessages(context.Background(), `from:news@example.com`, 100, "tok-1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}

	if gotQuery != `from:news@example.com` {
		t.Errorf("query = %q", gotQuery)
	}
	if gotMax != "100" {
		t.Errorf("maxResults = %q, want 100", gotMax)
	}
	if gotToken != "tok-1" {
		t.Errorf("pageToken = %q, want tok-1", gotToken)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page.Messages))
	}
	if page.Messages[0].ID != "m1" || page.Messages[0].ThreadID != "t1" {
		t.Errorf("unexpected first stub: %+v", page.Messages[0])
	}
	if page.NextPageToken != "tok-2" {
		t.Errorf("NextPageToken = %q, want tok-2", page.NextPageToken)
	}
}

func TestClient_ListMessages_ClampsMaxResults(t *testing.T) {
	var gotMax string
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		gotMax = r.URL.Query().Get("maxResults")
		fmt.Fprint(w, `{"messages":[]}`)
	})

	if _, err := client.ListMessages(context.Background(), "", 0, ""); err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if gotMax != "500" {
		t.Errorf("maxResults = %q, want clamped to 500", gotMax)
	}
}

func TestClient_RetryOnRateLimit(t *testing.T) {
	requests := 0
	client := newTestClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			writeAPIError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		fmt.Fprint(w, `{"messages":[{"id":"m1","threadId":"t1"}]}`)
	})

	start := time.Now()
	page, err := client.ListMessages(context.Background(), "is:unread", 10, "")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if requests != 2 {
		t.Errorf("expected 2 requests (initial + one retry), got %d", requests)
	}
	if len(page.Messages) != 1 {
		t.Errorf("expected 1 message after retry, got %d", len(page.Messages))
	}
	// Pre-call delay + first backoff + post-success delay, 1ms each.
	if elapsed < 3*time.Millisecond {
		t.Errorf("elapsed %v, want at least 3ms of pacing", elapsed)
	}
}

func TestClient_NoRetryOnBadRequest(t *testing.T) {
	requests := 0
	client := newTestClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		requests++
		writeAPIError(w, http.StatusBadRequest, "invalid query")
	})

	_, err := client.ListMessages(context.Background(), "malformed", 10, "")
	if !IsInvalidParameter(err) {
		t.Fatalf("expected invalid-parameter error, got %v", err)
	}
	if requests != 1 {
		t.Errorf("bad request must not be retried, got %d requests", requests)
	}
}

func TestClient_RetriesExhausted(t *testing.T) {
	requests := 0
	client := newTestClient(t, 2, func(w http.ResponseWriter, r *http.Request) {
		requests++
		writeAPIError(w, http.StatusInternalServerError, "backend error")
	})

	_, err := client.ListMessages(context.Background(), "is:unread", 10, "")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if requests != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", requests)
	}
	if IsRetryable(err) {
		t.Error("exhausted error must not be retryable")
	}
	if !strings.Contains(err.Error(), "giving up after 3 attempts") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestClient_GetMessage_Validation(t *testing.T) {
	requests := 0
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		requests++
	})

	if _, err := client.GetMessage(context.Background(), "", FormatMetadata); !IsInvalidParameter(err) {
		t.Errorf("empty id: expected invalid-parameter error, got %v", err)
	}
	if _, err := client.GetMessage(context.Background(), "m1", Format("bogus")); !IsInvalidParameter(err) {
		t.Errorf("bad format: expected invalid-parameter error, got %v", err)
	}
	if requests != 0 {
		t.Errorf("validation failures must not reach the provider, got %d requests", requests)
	}
}

func TestClient_GetMessage_NotFound(t *testing.T) {
	client := newTestClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, "message not found")
	})

	_, err := client.GetMessage(context.Background(), "gone", FormatMetadata)
	if !IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestClient_BatchModifyLabels(t *testing.T) {
	var gotBody gmailapi.BatchModifyMessagesRequest
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages/batchModify") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	n, err := client.BatchModifyLabels(context.Background(), []string{"m1", "m2"}, []string{"Label_1"}, []string{"INBOX"})
	if err != nil {
		t.Fatalf("BatchModifyLabels: %v", err)
	}
	if n != 2 {
		t.Errorf("modified count = %d, want 2", n)
	}
	if len(gotBody.Ids) != 2 || gotBody.Ids[0] != "m1" {
		t.Errorf("request ids = %v", gotBody.Ids)
	}
	if len(gotBody.AddLabelIds) != 1 || gotBody.AddLabelIds[0] != "Label_1" {
		t.Errorf("request add = %v", gotBody.AddLabelIds)
	}
	if len(gotBody.RemoveLabelIds) != 1 || gotBody.RemoveLabelIds[0] != "INBOX" {
		t.Errorf("request remove = %v", gotBody.RemoveLabelIds)
	}
}

func TestClient_BatchModifyLabels_Guards(t *testing.T) {
	requests := 0
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		requests++
	})
	ctx := context.Background()

	n, err := client.BatchModifyLabels(ctx, nil, []string{"Label_1"}, nil)
	if err != nil || n != 0 {
		t.Errorf("empty ids: got (%d, %v), want (0, nil)", n, err)
	}

	tooMany := make([]string, batchLimit+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("m%d", i)
	}
	if _, err := client.BatchModifyLabels(ctx, tooMany, []string{"Label_1"}, nil); !IsInvalidParameter(err) {
		t.Errorf("oversize batch: expected invalid-parameter error, got %v", err)
	}

	if _, err := client.BatchModifyLabels(ctx, []string{"m1"}, nil, nil); !IsInvalidParameter(err) {
		t.Errorf("no label changes: expected invalid-parameter error, got %v", err)
	}

	if requests != 0 {
		t.Errorf("guard failures must not reach the provider, got %d requests", requests)
	}
}

func TestClient_BatchHelpers(t *testing.T) {
	testCases := []struct {
		name       string
		run        func(c *Client, ctx context.Context) (int, error)
		wantAdd    []string
		wantRemove []string
	}{
		{
			name:    "trash",
			run:     func(c *Client, ctx context.Context) (int, error) { return c.BatchTrash(ctx, []string{"m1"}) },
			wantAdd: []string{"TRASH"},
		},
		{
			name:       "mark read",
			run:        func(c *Client, ctx context.Context) (int, error) { return c.BatchMarkRead(ctx, []string{"m1"}, true) },
			wantRemove: []string{"UNREAD"},
		},
		{
			name:    "mark unread",
			run:     func(c *Client, ctx context.Context) (int, error) { return c.BatchMarkRead(ctx, []string{"m1"}, false) },
			wantAdd: []string{"UNREAD"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var gotBody gmailapi.BatchModifyMessagesRequest
			client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
					t.Errorf("decode body: %v", err)
				}
				w.WriteHeader(http.StatusNoContent)
			})

			n, err := tc.run(client, context.Background())
			if err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
			if n != 1 {
				t.Errorf("count = %d, want 1", n)
			}
			if fmt.Sprint(gotBody.AddLabelIds) != fmt.Sprint(tc.wantAdd) {
				t.Errorf("add = %v, want %v", gotBody.AddLabelIds, tc.wantAdd)
			}
			if fmt.Sprint(gotBody.RemoveLabelIds) != fmt.Sprint(tc.wantRemove) {
				t.Errorf("remove = %v, want %v", gotBody.RemoveLabelIds, tc.wantRemove)
			}
		})
	}
}

func TestClient_BatchDelete(t *testing.T) {
	var gotBody gmailapi.BatchDeleteMessagesRequest
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages/batchDelete") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	n, err := client.BatchDelete(context.Background(), []string{"m1", "m2", "m3"})
	if err != nil {
		t.Fatalf("BatchDelete: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted count = %d, want 3", n)
	}
	if len(gotBody.Ids) != 3 {
		t.Errorf("request ids = %v", gotBody.Ids)
	}
}

func TestClient_ListLabels(t *testing.T) {
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"labels":[{"id":"INBOX","name":"INBOX","type":"system"},{"id":"Label_1","name":"Newsletters","type":"user"}]}`)
	})

	labels, err := client.ListLabels(context.Background())
	if err != nil {
		t.Fatalf("ListLabels: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(labels))
	}
	if labels[1].ID != "Label_1" || labels[1].Name != "Newsletters" {
		t.Errorf("unexpected label: %+v", labels[1])
	}
}

func TestClient_CancelledContext(t *testing.T) {
	requests := 0
	client := newTestClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		requests++
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListMessages(ctx, "is:unread", 10, "")
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if requests != 0 {
		t.Errorf("cancelled context must not reach the provider, got %d requests", requests)
	}
}

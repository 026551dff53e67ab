package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDecodeMessageShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"flat camel", `{"submissionId":"s1","action":"review"}`, "s1"},
		{"flat snake", `{"submission_id":"s2"}`, "s2"},
		{"nested data", `{"type":"update","data":{"submissionId":"s3"}}`, "s3"},
		{"stringified data", `{"data":"{\"submission_id\":\"s4\"}"}`, "s4"},
		{"stringified whole", `"{\"submissionId\":\"s5\"}"`, "s5"},
		{"numeric id", `{"submissionId":42}`, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage(tt.in)
			if err != nil {
				t.Fatalf("DecodeMessage: %v", err)
			}
			if msg.SubmissionID != tt.want {
				t.Errorf("got %q, want %q", msg.SubmissionID, tt.want)
			}
		})
	}

	if _, err := DecodeMessage(`{"client_id":"x"}`); !errors.Is(err, ErrNoSubmissionID) {
		t.Errorf("expected ErrNoSubmissionID, got %v", err)
	}
	if _, err := DecodeMessage(`not json`); err == nil {
		t.Error("expected decode error")
	}
}

func TestHubFiltersBySubmission(t *testing.T) {
	hub := NewHub(nil)
	all := &Client{ID: "a", Events: make(chan Event, 4)}
	only := &Client{ID: "b", SubmissionID: "s1", Events: make(chan Event, 4)}
	hub.Register(all)
	hub.Register(only)

	ctx := context.Background()
	hub.PublishSubmissionUpdate(ctx, "s2", "review")
	hub.PublishSubmissionUpdate(ctx, "s1", "approve")

	if len(all.Events) != 2 {
		t.Errorf("unfiltered client should see both events, got %d", len(all.Events))
	}
	if len(only.Events) != 1 {
		t.Fatalf("filtered client should see one event, got %d", len(only.Events))
	}
	ev := <-only.Events
	msg, err := DecodeMessage(ev.Data)
	if err != nil || msg.SubmissionID != "s1" || msg.Action != "approve" {
		t.Errorf("unexpected event %+v (%v)", msg, err)
	}

	hub.Unregister("b")
	if hub.Count() != 1 {
		t.Errorf("expected 1 client, got %d", hub.Count())
	}
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(ctx context.Context, ev Event) error {
	p.calls++
	return errors.New("redis down")
}

func TestHubPublishFallsBackToLocal(t *testing.T) {
	hub := NewHub(nil)
	p := &failingPublisher{}
	hub.SetPublisher(p)
	c := &Client{ID: "a", Events: make(chan Event, 1)}
	hub.Register(c)

	hub.PublishSubmissionUpdate(context.Background(), "s1", "update")
	if p.calls != 1 || len(c.Events) != 1 {
		t.Errorf("calls=%d queued=%d", p.calls, len(c.Events))
	}
}

func TestSourceDispatchAndReconnect(t *testing.T) {
	connects := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "event: connected\ndata: {\"client_id\":\"c1\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: submission_update\ndata: {\"submissionId\":\"other\"}\n\n")
		fmt.Fprint(w, "event: submission_update\ndata: {\"submissionId\":\"s1\",\"action\":\"review\"}\n\n")
		flusher.Flush()
		select {
		case connects <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	src := NewSource(srv.URL, WithBearerToken("tok"), WithRetry(20*time.Millisecond))
	hits := make(chan struct{}, 8)
	unsubscribe := src.Subscribe("s1", func() {
		select {
		case hits <- struct{}{}:
		default:
		}
	})

	changes := make(chan bool, 8)
	src.OnConnectionChange(func(up bool) {
		select {
		case changes <- up:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("no event dispatched")
	}
	if up := <-changes; !up {
		t.Error("first connection change should be connected")
	}

	// server closes after each batch; the source reconnects
	for i := 0; i < 2; i++ {
		select {
		case <-connects:
		case <-time.After(2 * time.Second):
			t.Fatal("source did not reconnect")
		}
	}

	unsubscribe()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if src.Connected() {
		t.Error("source should be disconnected after Run returns")
	}
}

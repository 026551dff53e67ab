package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/validation"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, status, code int, message string, data interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{"code": code, "message": message}
	if data != nil {
		body["data"] = data
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/v1", WithToken("test-token"))
}

func TestGetSubmission(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/submissions/sub-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		writeEnvelope(t, w, 200, 0, "success", map[string]interface{}{
			"id":              "sub-1",
			"vendor_name":     "PT Maju",
			"review_status":   "PENDING_REVIEW",
			"approval_status": "PENDING_APPROVAL",
			"version":         3,
		})
	})

	sub, err := c.GetSubmission(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.VendorName != "PT Maju" || sub.Version != 3 {
		t.Errorf("unexpected submission %+v", sub)
	}
}

func TestNotFoundAndConflict(t *testing.T) {
	status := http.StatusNotFound
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, status, status*100, "gone", nil)
	})

	_, err := c.GetSubmission(context.Background(), "sub-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	status = http.StatusConflict
	_, err = c.UpdateSubmission(context.Background(), "sub-1", 2, entity.SubmissionPatch{})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 40900 {
		t.Errorf("expected APIError code 40900, got %v", err)
	}
}

func TestUpdateSendsIfMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if got := r.Header.Get("If-Match"); got != `"4"` {
			t.Errorf("expected If-Match \"4\", got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var patch map[string]interface{}
		json.Unmarshal(body, &patch)
		if patch["working_hours"] != "07:00 - 16:00" {
			t.Errorf("unexpected body %s", body)
		}
		if _, ok := patch["content_template"]; ok {
			t.Errorf("nil fields must be omitted, got %s", body)
		}
		writeEnvelope(t, w, 200, 0, "success", map[string]interface{}{
			"id": "sub-1", "review_status": "PENDING_REVIEW", "approval_status": "PENDING_APPROVAL",
			"working_hours": "07:00 - 16:00", "version": 5,
		})
	})

	hours := "07:00 - 16:00"
	sub, err := c.UpdateSubmission(context.Background(), "sub-1", 4, entity.SubmissionPatch{WorkingHours: &hours})
	if err != nil {
		t.Fatalf("UpdateSubmission: %v", err)
	}
	if sub.Version != 5 {
		t.Errorf("expected version 5, got %d", sub.Version)
	}
}

func TestValidationFailuresDecoded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, 400, 40000, "simlok_number is required to approve", map[string]interface{}{
			"failures": []validation.Failure{{Field: "simlok_number", Message: "simlok_number is required to approve"}},
		})
	})

	_, err := c.SubmitApproval(context.Background(), "sub-1", 1, validation.ApprovalInput{Decision: entity.ApprovalStatusApproved})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if len(apiErr.Failures) != 1 || apiErr.Failures[0].Field != "simlok_number" {
		t.Errorf("unexpected failures %+v", apiErr.Failures)
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		t.Errorf("400 must not map to a sentinel")
	}
}

func TestDecodeErrorOnBadPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, 200, 0, "success", map[string]interface{}{"id": "sub-1", "review_status": "WHATEVER"})
	})
	_, err := c.GetSubmission(context.Background(), "sub-1")
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestListScansTolerates404(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, 404, 40400, "not found", nil)
	})
	scans, err := c.ListScans(context.Background(), "sub-1")
	if err != nil || len(scans) != 0 {
		t.Fatalf("expected empty history, got %v %v", scans, err)
	}
}

func TestNextSimlokNumber(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("year") != "2024" {
			t.Errorf("expected year=2024, got %s", r.URL.RawQuery)
		}
		writeEnvelope(t, w, 200, 0, "success", map[string]string{"simlok_number": "007/S00330/2024-S0"})
	})
	n, err := c.NextSimlokNumber(context.Background(), 2024)
	if err != nil || n != "007/S00330/2024-S0" {
		t.Fatalf("got %q %v", n, err)
	}
}

func TestDeleteWorker(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		writeEnvelope(t, w, 200, 0, "success", nil)
	})
	if err := c.DeleteWorker(context.Background(), "sub-1", "w-9"); err != nil {
		t.Fatalf("DeleteWorker: %v", err)
	}
	if gotPath != "DELETE /api/v1/submissions/sub-1/workers/w-9" {
		t.Errorf("unexpected request %s", gotPath)
	}
}

func TestContextCancel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetSubmission(ctx, "sub-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c := New("http://store.local/api/v1", WithHTTPClient(shared), WithTimeout(2*time.Second))
	if shared.Timeout != time.Minute {
		t.Fatalf("shared client timeout changed to %v", shared.Timeout)
	}
	if c.httpClient == shared || c.httpClient.Timeout != 2*time.Second {
		t.Errorf("expected a private copy with 2s timeout, got %v", c.httpClient.Timeout)
	}

	before := http.DefaultClient.Timeout
	New("http://store.local/api/v1", WithHTTPClient(http.DefaultClient), WithTimeout(time.Second))
	if http.DefaultClient.Timeout != before {
		t.Errorf("http.DefaultClient timeout changed to %v", http.DefaultClient.Timeout)
	}
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/client"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/lifecycle"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/repository"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/service"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/sse"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/testutil"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/validation"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/workflow"
	"go.uber.org/zap"
)

func setupSubmissionTest(t *testing.T) (*testutil.TestEnv, *sse.Hub) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	hub := sse.NewHub(zap.NewNop())
	svc := service.NewServices(repos, nil, hub, zap.NewNop())
	h := NewHandlers(svc, hub, time.Second, zap.NewNop())

	router := testutil.SetupRouter()
	h.Register(testutil.AuthGroup(router, "/api/v1"))

	return &testutil.TestEnv{DB: db, Router: router, T: t}, hub
}

func reviewBody(outcome entity.ReviewStatus) map[string]interface{} {
	return map[string]interface{}{
		"review_status":             outcome,
		"note_for_approver":         "Dokumen lengkap",
		"note_for_vendor":           "Lengkapi JSA",
		"implementation_start_date": "2024-06-03",
		"implementation_end_date":   "2024-06-05",
		"working_hours":             "08:00-16:00",
	}
}

func TestSubmissionCreateAndGet(t *testing.T) {
	env, _ := setupSubmissionTest(t)
	vendor := testutil.RoleToken(string(lifecycle.RoleVendor))

	body := map[string]interface{}{
		"vendor_name":     "PT Maju Jaya",
		"job_description": "Perbaikan pipa",
		"work_location":   "Kilang 3",
		"review_status":   "APPROVED",
		"documents": []map[string]interface{}{
			{"document_type": "SIMJA", "document_number": "SIMJA-1", "document_date": "2024-05-01", "document_upload": "/u/simja.pdf"},
			{"document_type": "SIKA", "document_subtype": "Pekerjaan Panas", "document_number": "SIKA-1", "document_date": "2024-05-01", "document_upload": "/u/sika.pdf"},
		},
		"workers": []map[string]interface{}{{
			"id":                        "temp-1",
			"worker_name":               "Budi",
			"worker_photo":              "/u/budi.jpg",
			"hsse_pass_number":          "HSSE-1",
			"hsse_pass_valid_thru":      "2025-01-01",
			"hsse_pass_document_upload": "/u/hsse.pdf",
		}},
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/submissions", body, vendor)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") != `"1"` {
		t.Errorf("expected ETag \"1\", got %q", w.Header().Get("ETag"))
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["review_status"] != string(entity.ReviewStatusPending) || data["approval_status"] != string(entity.ApprovalStatusPending) {
		t.Fatalf("new submissions start pending, got %v / %v", data["review_status"], data["approval_status"])
	}
	if data["worker_count"].(float64) != 1 {
		t.Errorf("worker_count should default to the roster size, got %v", data["worker_count"])
	}
	id := data["id"].(string)

	w2 := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/submissions/"+id, nil, testutil.DefaultTestToken())
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w2.Code, w2.Body.String())
	}
	got := testutil.ParseResponse(w2)["data"].(map[string]interface{})
	workers := got["workers"].([]interface{})
	if len(workers) != 1 {
		t.Fatalf("expected 1 worker, got %d", len(workers))
	}
	if wid := workers[0].(map[string]interface{})["id"].(string); wid == "temp-1" || wid == "" {
		t.Errorf("temporary worker id must be replaced, got %q", wid)
	}
}

func TestSubmissionCreateNamesMissingFields(t *testing.T) {
	env, _ := setupSubmissionTest(t)
	vendor := testutil.RoleToken(string(lifecycle.RoleVendor))

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/submissions", map[string]interface{}{
		"vendor_name": "PT Maju Jaya",
	}, vendor)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	fields := map[string]bool{}
	for _, f := range data["failures"].([]interface{}) {
		fields[f.(map[string]interface{})["field"].(string)] = true
	}
	for _, want := range []string{"job_description", "work_location", "documents.simja", "documents.sika", "workers"} {
		if !fields[want] {
			t.Errorf("expected failure for %s, got %v", want, fields)
		}
	}
}

func TestSubmissionReviewAndApprove(t *testing.T) {
	env, _ := setupSubmissionTest(t)
	testutil.SeedSubmission(t, env.DB, "sub-001", entity.ReviewStatusPending, entity.ApprovalStatusPending)
	reviewer := testutil.RoleToken(string(lifecycle.RoleReviewer))
	approver := testutil.RoleToken(string(lifecycle.RoleApprover))

	// approve before review
	w := testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/submissions/sub-001/approve", map[string]interface{}{
		"approval_status": "APPROVED",
		"simlok_number":   "001/S00330/2024-S0",
		"simlok_date":     "2024-06-01",
	}, approver)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("approval before review: expected 422, got %d: %s", w.Code, w.Body.String())
	}

	// review with If-Match
	w = testutil.DoRequestWithHeaders(env.Router, http.MethodPatch, "/api/v1/submissions/sub-001/review",
		reviewBody(entity.ReviewStatusMeets), reviewer, map[string]string{"If-Match": `"1"`})
	if w.Code != http.StatusOK {
		t.Fatalf("review: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") != `"2"` {
		t.Errorf("review should bump the version, ETag %q", w.Header().Get("ETag"))
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["review_status"] != string(entity.ReviewStatusMeets) || data["approval_status"] != string(entity.ApprovalStatusPending) {
		t.Fatalf("unexpected state %v / %v", data["review_status"], data["approval_status"])
	}

	// stale version
	w = testutil.DoRequestWithHeaders(env.Router, http.MethodPatch, "/api/v1/submissions/sub-001/review",
		reviewBody(entity.ReviewStatusMeets), reviewer, map[string]string{"If-Match": `"1"`})
	if w.Code != http.StatusConflict {
		t.Fatalf("stale review: expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if testutil.ParseResponse(w)["code"].(float64) != CodeConflict {
		t.Errorf("expected code %d", CodeConflict)
	}

	// next number before any approval
	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/submissions/simlok/next-number?year=2024", nil, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("next-number: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	number := testutil.ParseResponse(w)["data"].(map[string]interface{})["simlok_number"].(string)
	if number != "001/S00330/2024-S0" {
		t.Errorf("unexpected number %q", number)
	}

	w = testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/submissions/sub-001/approve", map[string]interface{}{
		"approval_status": "APPROVED",
		"simlok_number":   number,
		"simlok_date":     "2024-06-01",
	}, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/submissions/simlok/next-number?year=2024", nil, approver)
	if got := testutil.ParseResponse(w)["data"].(map[string]interface{})["simlok_number"]; got != "002/S00330/2024-S0" {
		t.Errorf("sequence should advance after approval, got %v", got)
	}

	// approved submissions are frozen
	w = testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/submissions/sub-001", map[string]interface{}{
		"working_hours": "07:00-15:00",
	}, reviewer)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("edit after approval: expected 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSubmissionReviewValidation(t *testing.T) {
	env, _ := setupSubmissionTest(t)
	testutil.SeedSubmission(t, env.DB, "sub-002", entity.ReviewStatusPending, entity.ApprovalStatusPending)
	reviewer := testutil.RoleToken(string(lifecycle.RoleReviewer))

	body := reviewBody(entity.ReviewStatusMeets)
	body["note_for_approver"] = ""
	w := testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/submissions/sub-002/review", body, reviewer)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if msg := testutil.ParseResponse(w)["message"].(string); msg == "" {
		t.Error("message should name the missing field")
	}

	var sub entity.Submission
	env.DB.Where("id = ?", "sub-002").First(&sub)
	if sub.ReviewStatus != entity.ReviewStatusPending || sub.Version != 1 {
		t.Errorf("rejected review must not change the submission, got %s v%d", sub.ReviewStatus, sub.Version)
	}
}

func TestSubmissionWorkersAndScans(t *testing.T) {
	env, _ := setupSubmissionTest(t)
	testutil.SeedSubmission(t, env.DB, "sub-003", entity.ReviewStatusPending, entity.ApprovalStatusPending)
	vendor := testutil.RoleToken(string(lifecycle.RoleVendor))

	w := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/submissions/sub-003/workers", nil, vendor)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected 1 worker, got %d", len(items))
	}

	w = testutil.DoRequest(env.Router, http.MethodDelete, "/api/v1/submissions/sub-003/workers/nobody", nil, vendor)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown worker: expected 404, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, http.MethodDelete, "/api/v1/submissions/sub-003/workers/sub-003-w1", nil, vendor)
	if w.Code != http.StatusOK {
		t.Fatalf("delete worker: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var sub entity.Submission
	env.DB.Where("id = ?", "sub-003").First(&sub)
	if sub.Version != 1 {
		t.Errorf("deleting a worker must not bump the version, got %d", sub.Version)
	}

	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/submissions/sub-003/scans", nil, vendor)
	if w.Code != http.StatusOK {
		t.Fatalf("scans: expected 200, got %d", w.Code)
	}
	if items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{}); len(items) != 0 {
		t.Errorf("expected empty scan history, got %v", items)
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/submissions/sub-003/scans",
		map[string]interface{}{"location": "Pos 1"}, testutil.RoleToken(RoleVerifier))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("scanning an unapproved permit: expected 422, got %d", w.Code)
	}

	for _, path := range []string{"/api/v1/submissions/gone", "/api/v1/submissions/gone/workers", "/api/v1/submissions/gone/scans"} {
		w = testutil.DoRequest(env.Router, http.MethodGet, path, nil, vendor)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestSubmissionUpdateReplacesRoster(t *testing.T) {
	env, hub := setupSubmissionTest(t)
	testutil.SeedSubmission(t, env.DB, "sub-004", entity.ReviewStatusPending, entity.ApprovalStatusPending)
	vendor := testutil.RoleToken(string(lifecycle.RoleVendor))

	events := make(chan sse.Event, 8)
	hub.Register(&sse.Client{ID: "watcher", SubmissionID: "sub-004", Events: events})
	defer hub.Unregister("watcher")

	body := map[string]interface{}{
		"worker_count": 2,
		"workers": []map[string]interface{}{
			{"worker_name": "Sari", "worker_photo": "/u/sari.jpg", "hsse_pass_number": "HSSE-2", "hsse_pass_valid_thru": "2025-03-01", "hsse_pass_document_upload": "/u/sari.pdf"},
			{"worker_name": "Andi", "worker_photo": "/u/andi.jpg", "hsse_pass_number": "HSSE-3", "hsse_pass_valid_thru": "2025-03-01", "hsse_pass_document_upload": "/u/andi.pdf"},
		},
	}
	w := testutil.DoRequestWithHeaders(env.Router, http.MethodPatch, "/api/v1/submissions/sub-004", body, vendor,
		map[string]string{"If-Match": `"1"`})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var workers []entity.Worker
	env.DB.Where("submission_id = ?", "sub-004").Find(&workers)
	if len(workers) != 2 {
		t.Fatalf("roster should be replaced, got %d workers", len(workers))
	}
	for _, wk := range workers {
		if wk.ID == "sub-004-w1" {
			t.Error("workers missing from the new roster must be removed")
		}
	}

	select {
	case ev := <-events:
		msg, err := sse.DecodeMessage(ev.Data)
		if err != nil || msg.SubmissionID != "sub-004" {
			t.Errorf("unexpected push %+v (%v)", msg, err)
		}
	case <-time.After(time.Second):
		t.Error("update should push a submission_update")
	}
}

// The client and workflow packages against the real handlers.
func TestWorkflowAgainstServer(t *testing.T) {
	env, _ := setupSubmissionTest(t)
	testutil.SeedSubmission(t, env.DB, "sub-005", entity.ReviewStatusPending, entity.ApprovalStatusPending)
	srv := httptest.NewServer(env.Router)
	defer srv.Close()

	ctx := context.Background()
	reviewerClient := client.New(srv.URL+"/api/v1", client.WithToken(testutil.RoleToken(string(lifecycle.RoleReviewer))))
	sub, err := reviewerClient.GetSubmission(ctx, "sub-005")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}

	wf := workflow.New(reviewerClient)
	reviewed, err := wf.SubmitReview(ctx, sub, validation.ReviewInput{
		Outcome:                 entity.ReviewStatusNotMeets,
		NoteForVendor:           "Foto pekerja buram",
		ImplementationStartDate: entity.NewDate(2024, time.June, 7),
		ImplementationEndDate:   entity.NewDate(2024, time.June, 9),
		WorkingHours:            "08:00-16:00",
		HolidayWorkingHours:     "08:00-12:00",
	})
	if err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if reviewed.ReviewStatus != entity.ReviewStatusNotMeets || reviewed.Version != 3 {
		t.Errorf("expected NOT_MEETS at version 3 (schedule + review), got %s v%d", reviewed.ReviewStatus, reviewed.Version)
	}

	// stale copy
	_, err = wf.SubmitReview(ctx, sub, validation.ReviewInput{
		Outcome:                 entity.ReviewStatusMeets,
		NoteForApprover:         "ok",
		ImplementationStartDate: entity.NewDate(2024, time.June, 3),
		ImplementationEndDate:   entity.NewDate(2024, time.June, 4),
		WorkingHours:            "08:00-16:00",
	})
	var phaseErr *workflow.PhaseError
	if !errors.As(err, &phaseErr) || phaseErr.Phase != workflow.PhaseSchedule {
		t.Fatalf("expected a schedule phase error, got %v", err)
	}
	if workflow.Classify(err) != workflow.KindConflict {
		t.Errorf("stale write should classify as conflict, got %s", workflow.Classify(err))
	}

	vendorClient := client.New(srv.URL+"/api/v1", client.WithToken(testutil.RoleToken(string(lifecycle.RoleVendor))))
	resubmitted, err := workflow.New(vendorClient).Resubmit(ctx, reviewed)
	if err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	if resubmitted.ReviewStatus != entity.ReviewStatusPending {
		t.Errorf("resubmit should reopen review, got %s", resubmitted.ReviewStatus)
	}

	if _, err := reviewerClient.GetSubmission(ctx, "missing"); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if scans, err := reviewerClient.ListScans(ctx, "missing"); err != nil || scans != nil {
		t.Errorf("scan history of a missing submission is empty, got %v %v", scans, err)
	}
}

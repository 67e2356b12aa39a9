// Copyright 2025 Ukweli Project
//
// Query API Handler Tests

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ukweli/ukwelidb/pkg/ledger"
	"github.com/ukweli/ukwelidb/pkg/metrics"
)

func testMux(t *testing.T) *http.ServeMux {
	t.Helper()
	l, err := ledger.Init(t.TempDir(), "apitest", 1000)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	if _, err := l.UserCreate("thabo", 1500); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := l.Append(&ledger.Proposal{
		Timestamp: 2000,
		Payload:   []byte("p1"),
		Signers:   []string{"thabo"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	return NewMux(l, metrics.New())
}

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestHandleRecords_List(t *testing.T) {
	mux := testMux(t)
	rr := get(t, mux, "/api/records")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var records []map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("record count: got %d, want 3", len(records))
	}
}

func TestHandleRecords_ByID(t *testing.T) {
	mux := testMux(t)
	rr := get(t, mux, "/api/records/2")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	rr = get(t, mux, "/api/records/99")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing record status: got %d, want 404", rr.Code)
	}

	rr = get(t, mux, "/api/records/abc")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status: got %d, want 400", rr.Code)
	}
}

func TestHandleVerify(t *testing.T) {
	mux := testMux(t)
	rr := get(t, mux, "/api/verify")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var report struct {
		OK      bool   `json:"ok"`
		Records uint64 `json:"records"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !report.OK || report.Records != 3 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestHandleProof(t *testing.T) {
	mux := testMux(t)
	rr := get(t, mux, "/api/proof?id=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	rr = get(t, mux, "/api/proof?id=nope")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status: got %d, want 400", rr.Code)
	}
}

func TestHandleState_MissingParams(t *testing.T) {
	mux := testMux(t)
	rr := get(t, mux, "/api/state")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	mux := testMux(t)
	rr := get(t, mux, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health["database"] != "apitest" {
		t.Errorf("database name: got %v", health["database"])
	}
}

func TestHandleMetrics(t *testing.T) {
	mux := testMux(t)
	rr := get(t, mux, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/ragweb/ragweb/internal/knowledge"
	"github.com/ragweb/ragweb/internal/log"
	"github.com/ragweb/ragweb/internal/rag"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Keep-alive connections from the default client persist across tests
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// fakeService implements QAService for handler tests.
type fakeService struct {
	docs      []knowledge.Result
	listErr   error
	addedID   int64
	addErr    error
	deleted   bool
	deleteErr error
	answer    rag.Answer
	askErr    error
}

func (f *fakeService) AddDocument(_ context.Context, title, content string, _ map[string]string) (int64, error) {
	if title == "" {
		return 0, knowledge.ErrEmptyTitle
	}
	if content == "" {
		return 0, knowledge.ErrEmptyContent
	}
	if f.addErr != nil {
		return 0, f.addErr
	}
	return f.addedID, nil
}

func (f *fakeService) ListDocuments(context.Context) ([]knowledge.Result, error) {
	return f.docs, f.listErr
}

func (f *fakeService) DeleteDocument(context.Context, int64) (bool, error) {
	return f.deleted, f.deleteErr
}

func (f *fakeService) Ask(_ context.Context, question string) (rag.Answer, error) {
	if question == "" {
		return rag.Answer{}, rag.ErrEmptyInput
	}
	return f.answer, f.askErr
}

func newTestServer(t *testing.T, svc QAService) *httptest.Server {
	t.Helper()
	s, err := NewServer(ServerConfig{
		Logger:  log.NewNop(),
		Service: svc,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeService{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version field = %v", body["version"])
	}
	if body["timestamp"] == "" {
		t.Error("timestamp missing")
	}
}

func TestListDocuments(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	svc := &fakeService{docs: []knowledge.Result{{
		Document: &knowledge.Document{
			ID: 7, Title: "Go", Content: "A language.",
			Embedding: []float32{1, 2, 3},
			Metadata:  map[string]string{"topic": "lang"},
			CreatedAt: created,
		},
	}}}
	ts := newTestServer(t, svc)

	resp, err := http.Get(ts.URL + "/api/documents")
	if err != nil {
		t.Fatalf("GET /api/documents: %v", err)
	}
	body := decodeBody(t, resp)

	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["count"] != float64(1) {
		t.Errorf("count = %v", body["count"])
	}

	docs := body["documents"].([]any)
	doc := docs[0].(map[string]any)
	if doc["created_at"] != "2026-03-14 09:26:53" {
		t.Errorf("created_at = %v", doc["created_at"])
	}
	if _, present := doc["embedding"]; present {
		t.Error("embedding leaked into API response")
	}
}

func TestAddDocument(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"title":"T","content":"C"}`, http.StatusCreated},
		{"missing title", `{"content":"C"}`, http.StatusBadRequest},
		{"missing content", `{"title":"T"}`, http.StatusBadRequest},
		{"bad json", `{not json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeService{addedID: 42})

			resp, err := http.Post(ts.URL+"/api/documents", "application/json",
				strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			body := decodeBody(t, resp)
			if tt.wantStatus == http.StatusCreated {
				if body["document_id"] != float64(42) {
					t.Errorf("document_id = %v", body["document_id"])
				}
			} else if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
		})
	}
}

func TestDeleteDocument(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		deleted    bool
		wantStatus int
	}{
		{"existing", "/api/documents/1", true, http.StatusOK},
		{"missing", "/api/documents/999", false, http.StatusNotFound},
		{"invalid id", "/api/documents/abc", false, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeService{deleted: tt.deleted})

			req, _ := http.NewRequest(http.MethodDelete, ts.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("DELETE: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestQuery(t *testing.T) {
	svc := &fakeService{answer: rag.Answer{
		Text:      "Grounded answer.",
		Sources:   []rag.Source{{Title: "Go", Similarity: 0.9}},
		Timestamp: time.Now().UTC(),
	}}
	ts := newTestServer(t, svc)

	resp, err := http.Post(ts.URL+"/api/query", "application/json",
		strings.NewReader(`{"question":"What is Go?"}`))
	if err != nil {
		t.Fatalf("POST /api/query: %v", err)
	}
	body := decodeBody(t, resp)

	if body["success"] != true || body["answer"] != "Grounded answer." {
		t.Errorf("unexpected body: %v", body)
	}
	if body["question"] != "What is Go?" {
		t.Errorf("question echo = %v", body["question"])
	}
	if _, ok := body["sources"]; !ok {
		t.Error("sources missing")
	}
}

func TestQuery_MissingQuestion(t *testing.T) {
	ts := newTestServer(t, &fakeService{})

	resp, err := http.Post(ts.URL+"/api/query", "application/json",
		strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST /api/query: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestInternalErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, &fakeService{listErr: errors.New("db down")})

	resp, err := http.Get(ts.URL + "/api/documents")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != false || body["error"] == "" {
		t.Errorf("unexpected envelope: %v", body)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		got := rec.Header().Get("X-Request-ID")
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("X-Request-ID = %q, not a valid UUID", got)
		}
	})

	t.Run("reuses valid", func(t *testing.T) {
		want := uuid.New().String()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", want)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID"); got != want {
			t.Errorf("X-Request-ID = %q, want %q", got, want)
		}
	})

	t.Run("replaces invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "not-a-uuid")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		got := rec.Header().Get("X-Request-ID")
		if got == "not-a-uuid" {
			t.Error("invalid X-Request-ID reused")
		}
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("X-Request-ID = %q, not a valid UUID", got)
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(log.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(0.001, 2)

	if !rl.allow("10.0.0.1") || !rl.allow("10.0.0.1") {
		t.Fatal("burst tokens not granted")
	}
	if rl.allow("10.0.0.1") {
		t.Error("request allowed past burst")
	}
	// Separate IPs get separate buckets.
	if !rl.allow("10.0.0.2") {
		t.Error("fresh IP rejected")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Real-IP", "203.0.113.9")

	if got := clientIP(req, false); got != "192.0.2.1" {
		t.Errorf("untrusted proxy: ip = %q", got)
	}
	if got := clientIP(req, true); got != "203.0.113.9" {
		t.Errorf("trusted proxy: ip = %q", got)
	}

	req.Header.Set("X-Real-IP", "<script>")
	if got := clientIP(req, true); got != "192.0.2.1" {
		t.Errorf("invalid header not rejected: ip = %q", got)
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/wisprlabs/voiceid/internal/config"
	"github.com/wisprlabs/voiceid/internal/embedder"
	"github.com/wisprlabs/voiceid/internal/identity"
	"github.com/wisprlabs/voiceid/internal/matcher"
	"github.com/wisprlabs/voiceid/internal/voicedb"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	httpCfg := config.HTTPConfig{MaxUploadBytes: 1 << 20}
	store, err := voicedb.Open(config.StoreConfig{
		Path:      filepath.Join(t.TempDir(), "embeddings.json"),
		OnCorrupt: "reset",
	}, 64, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := identity.NewService(
		embedder.NewMockEmbedder(64),
		store,
		matcher.New(config.MatcherConfig{Threshold: 0.70}),
		nil, nil, newLogger())

	mux := http.NewServeMux()
	NewServer(svc, httpCfg, newLogger()).Register(mux)
	return mux
}

func multipartBody(t *testing.T, name string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if name != "" {
		if err := w.WriteField("name", name); err != nil {
			t.Fatalf("write name field: %v", err)
		}
	}
	if audio != nil {
		part, err := w.CreateFormFile("file", "clip.wav")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(audio); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = body
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestEnrollAndIdentifyFlow(t *testing.T) {
	mux := newTestMux(t)
	clip := []byte("alice reading a sentence")

	body, contentType := multipartBody(t, "alice", clip)
	rec := doRequest(t, mux, http.MethodPost, "/enroll", body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("enroll status %d: %s", rec.Code, rec.Body.String())
	}
	var status struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode enroll response: %v", err)
	}
	if status.Status != "success" || status.Message != "Enrolled alice" {
		t.Fatalf("unexpected enroll response: %+v", status)
	}

	body, contentType = multipartBody(t, "", clip)
	rec = doRequest(t, mux, http.MethodPost, "/identify", body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("identify status %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Speaker    string  `json:"speaker"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode identify response: %v", err)
	}
	if result.Speaker != "alice" {
		t.Fatalf("expected alice, got %q", result.Speaker)
	}
	if result.Confidence < 0.999 {
		t.Fatalf("expected near-identity confidence, got %v", result.Confidence)
	}
}

func TestIdentifyEmptyDatabaseReturnsUnknown(t *testing.T) {
	mux := newTestMux(t)

	body, contentType := multipartBody(t, "", []byte("a stranger speaks"))
	rec := doRequest(t, mux, http.MethodPost, "/identify", body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("identify status %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Speaker    string  `json:"speaker"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode identify response: %v", err)
	}
	if result.Speaker != "unknown" || result.Confidence != 0 {
		t.Fatalf("expected unknown with zero confidence, got %+v", result)
	}
}

func TestEnrollRequiresName(t *testing.T) {
	mux := newTestMux(t)

	body, contentType := multipartBody(t, "", []byte("who am i"))
	rec := doRequest(t, mux, http.MethodPost, "/enroll", body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEnrollRequiresFile(t *testing.T) {
	mux := newTestMux(t)

	body, contentType := multipartBody(t, "alice", nil)
	rec := doRequest(t, mux, http.MethodPost, "/enroll", body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIdentifyRejectsGet(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodGet, "/identify", nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSpeakersEndpoint(t *testing.T) {
	mux := newTestMux(t)

	body, contentType := multipartBody(t, "alice", []byte("clip one"))
	if rec := doRequest(t, mux, http.MethodPost, "/enroll", body, contentType); rec.Code != http.StatusOK {
		t.Fatalf("enroll status %d", rec.Code)
	}
	body, contentType = multipartBody(t, "bob", []byte("clip two"))
	if rec := doRequest(t, mux, http.MethodPost, "/enroll", body, contentType); rec.Code != http.StatusOK {
		t.Fatalf("enroll status %d", rec.Code)
	}

	rec := doRequest(t, mux, http.MethodGet, "/speakers", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("speakers status %d", rec.Code)
	}
	var resp struct {
		Speakers []struct {
			Speaker string `json:"speaker"`
			Samples int    `json:"samples"`
		} `json:"speakers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode speakers response: %v", err)
	}
	if len(resp.Speakers) != 2 {
		t.Fatalf("expected 2 speakers, got %+v", resp.Speakers)
	}
	if resp.Speakers[0].Speaker != "alice" || resp.Speakers[1].Speaker != "bob" {
		t.Fatalf("expected enrollment order, got %+v", resp.Speakers)
	}
}

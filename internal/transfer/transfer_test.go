package transfer

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "downloads"), nil)
}

func serveArtifact(t *testing.T, body []byte, declareLength bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/out/app.apk" {
			http.NotFound(w, r)
			return
		}
		if !declareLength {
			w.Header().Set("Transfer-Encoding", "chunked")
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchWritesArtifact(t *testing.T) {
	body := bytes.Repeat([]byte("apk"), 1000)
	srv := serveArtifact(t, body, true)
	m := newTestManager(t)

	var percents []int
	local, err := m.Fetch(context.Background(), srv.URL, "/out/app.apk", int64(len(body)), func(p int) {
		percents = append(percents, p)
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	got, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("artifact content mismatch: got %d bytes, want %d", len(got), len(body))
	}
	if len(percents) == 0 {
		t.Fatal("expected progress reports for a known size")
	}
	if final := percents[len(percents)-1]; final != 100 {
		t.Errorf("final percent = %d, want 100", final)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] <= percents[i-1] {
			t.Errorf("percents not strictly increasing at %d: %v", i, percents)
		}
	}
}

func TestFetchUnknownSizeSkipsProgress(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 4096)
	srv := serveArtifact(t, body, false)
	m := newTestManager(t)

	var percents []int
	local, err := m.Fetch(context.Background(), srv.URL, "/out/app.apk", 0, func(p int) {
		percents = append(percents, p)
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(percents) != 0 {
		t.Errorf("expected no progress reports for unknown size, got %v", percents)
	}
	info, err := os.Stat(local)
	if err != nil {
		t.Fatalf("stat artifact: %v", err)
	}
	if info.Size() != int64(len(body)) {
		t.Errorf("artifact size = %d, want %d", info.Size(), len(body))
	}
}

func TestFetchPurgesStaleArtifacts(t *testing.T) {
	srv := serveArtifact(t, []byte("fresh"), true)
	m := newTestManager(t)

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(m.dir, artifactPrefix+"stale.apk")
	if err := os.WriteFile(stale, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	unrelated := filepath.Join(m.dir, "notes.txt")
	if err := os.WriteFile(unrelated, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	local, err := m.Fetch(context.Background(), srv.URL, "/out/app.apk", 5, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale artifact was not purged")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("unrelated file was removed")
	}
	if _, err := os.Stat(local); err != nil {
		t.Errorf("fresh artifact missing: %v", err)
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()
	m := newTestManager(t)

	_, err := m.Fetch(context.Background(), srv.URL, "/out/app.apk", 10, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "unexpected status") {
		t.Errorf("error = %v, want status failure", err)
	}
}

func TestFetchJoinsURLSlashes(t *testing.T) {
	srv := serveArtifact(t, []byte("ok"), true)
	m := newTestManager(t)

	// Trailing slash on the base and leading slash on the path must not
	// produce a double slash.
	if _, err := m.Fetch(context.Background(), srv.URL+"/", "/out/app.apk", 2, nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

package testutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// Upstream is a fake processing backend that answers every request with a
// fixed sequence of event-stream chunks, flushing after each one.
type Upstream struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*http.Request
	forms    []map[string][]string
	files    [][]string
}

// NewUpstream starts a fake backend. The server is closed when the test ends.
func NewUpstream(t *testing.T, chunks ...string) *Upstream {
	t.Helper()

	u := &Upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var names []string
		for _, fh := range r.MultipartForm.File["files"] {
			names = append(names, fh.Filename)
		}

		u.mu.Lock()
		u.requests = append(u.requests, r)
		u.forms = append(u.forms, r.MultipartForm.Value)
		u.files = append(u.files, names)
		u.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, c := range chunks {
			if _, err := w.Write([]byte(c)); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	t.Cleanup(u.Close)

	return u
}

// Requests returns how many uploads the backend has received.
func (u *Upstream) Requests() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

// Request returns the i-th request received.
func (u *Upstream) Request(i int) *http.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests[i]
}

// Form returns the non-file form fields of the i-th upload.
func (u *Upstream) Form(i int) map[string][]string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.forms[i]
}

// Files returns the uploaded file names of the i-th upload.
func (u *Upstream) Files(i int) []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.files[i]
}

// WriteFiles creates one file per name under dir and returns their paths.
func WriteFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("content of "+name), 0o644); err != nil {
			t.Fatalf("WriteFiles() error = %v", err)
		}
		paths = append(paths, p)
	}
	return paths
}

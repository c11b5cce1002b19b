package testutil

import (
	"net/http"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// NewVCRRecorder creates a recorder for the cassette at cassettePath (without
// the .yaml extension). Real requests go through transport when recording.
// The recorder is stopped, and a recording saved, when the test ends.
func NewVCRRecorder(t *testing.T, cassettePath string, mode recorder.Mode, transport http.RoundTripper) *recorder.Recorder {
	t.Helper()

	r, err := recorder.NewAsMode(cassettePath, mode, transport)
	if err != nil {
		t.Fatalf("Failed to create VCR recorder: %v", err)
	}

	// Multipart boundaries differ per request, so bodies are not matched.
	r.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && r.URL.String() == i.URL
	})

	t.Cleanup(func() {
		if err := r.Stop(); err != nil {
			t.Errorf("Failed to stop VCR recorder: %v", err)
		}
	})

	return r
}

// StopVCRRecorder saves the cassette now so it can be replayed within the
// same test. Stopping again at cleanup is harmless.
func StopVCRRecorder(t *testing.T, r *recorder.Recorder) {
	t.Helper()
	if err := r.Stop(); err != nil {
		t.Fatalf("Failed to stop VCR recorder: %v", err)
	}
}

// VCRHTTPClient returns an HTTP client configured to use the VCR recorder
func VCRHTTPClient(r *recorder.Recorder) *http.Client {
	return &http.Client{
		Transport: r,
	}
}

package progress_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sujalmh/vector-loader-automation/internal/testutil"
	"github.com/sujalmh/vector-loader-automation/pkg/progress"
)

func TestEmbeddedSession(t *testing.T) {
	up := testutil.NewUpstream(t,
		"data: {\"fileId\":\"doc-1\",\"status\":\"success\",\"progress\":100}\n\n",
	)
	paths := testutil.WriteFiles(t, t.TempDir(), "report.pdf")

	s, err := progress.New(progress.WithUploader(progress.NewClient(up.URL)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close(context.Background())

	if _, err := s.Start(context.Background(), progress.KindIngestion, []progress.Item{
		{ID: "doc-1", Name: "report.pdf", Path: paths[0]},
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	term, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if term.State != progress.StateCompleted {
		t.Errorf("State = %s, want completed", term.State)
	}

	sum := progress.Summarize(s.Snapshot())
	if sum.Succeeded != 1 || sum.PercentComplete != 100 {
		t.Errorf("Summarize() = %+v", sum)
	}

	if err := s.Cancel(); !errors.Is(err, progress.ErrNotStreaming) {
		t.Errorf("Cancel() error = %v, want ErrNotStreaming", err)
	}
}

package codec

import (
	"errors"
	"testing"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		frame      string
		wantID     domain.EntityID
		wantStatus domain.Status
		wantError  string
		wantDetail string
	}{
		{
			name:       "snake case success",
			frame:      `data: {"file_id":"A","status":"success"}`,
			wantID:     "A",
			wantStatus: domain.StatusSucceeded,
		},
		{
			name:       "camel case failure with error",
			frame:      `data: {"fileId":"B","status":"failed","error":"timeout"}`,
			wantID:     "B",
			wantStatus: domain.StatusFailed,
			wantError:  "timeout",
		},
		{
			name:       "ingestion details passthrough",
			frame:      `data: {"fileId":"C","status":"success","ingestionDetails":{"type":"unstructured","chunksCreated":4}}`,
			wantID:     "C",
			wantStatus: domain.StatusSucceeded,
			wantDetail: `{"type":"unstructured","chunksCreated":4}`,
		},
		{
			name:       "analysis without status succeeds",
			frame:      `data: {"fileId":"D","fileName":"d.pdf","analysis":{"domain":"finance","quality_score":0.9}}`,
			wantID:     "D",
			wantStatus: domain.StatusSucceeded,
			wantDetail: `{"domain":"finance","quality_score":0.9}`,
		},
		{
			name:       "analysis error frame without status fails",
			frame:      `data: {"fileId":"E","fileName":"e.pdf","error":"Processing error: boom"}`,
			wantID:     "E",
			wantStatus: domain.StatusFailed,
			wantError:  "Processing error: boom",
		},
		{
			name:       "nested analysis error fails",
			frame:      `data: {"fileId":"F","analysis":{"error":"llm unavailable","quality_score":0}}`,
			wantID:     "F",
			wantStatus: domain.StatusFailed,
			wantError:  "llm unavailable",
			wantDetail: `{"error":"llm unavailable","quality_score":0}`,
		},
		{
			name:       "unknown fields ignored",
			frame:      `data: {"file_id":"G","status":"pending","fileSize":12,"extra":{"x":[1,2]}}`,
			wantID:     "G",
			wantStatus: domain.StatusPending,
		},
		{
			name:       "multi-line data with event field and comment",
			frame:      "event: result\n: note\ndata: {\"file_id\":\"H\",\ndata: \"status\":\"success\"}",
			wantID:     "H",
			wantStatus: domain.StatusSucceeded,
		},
		{
			name:       "data without space and crlf",
			frame:      "data:{\"file_id\":\"I\",\"status\":\"FAILED\"}\r",
			wantID:     "I",
			wantStatus: domain.StatusFailed,
		},
		{
			name:       "null detail treated as absent",
			frame:      `data: {"fileId":"J","status":"failed","ingestionDetails":null,"error":"x"}`,
			wantID:     "J",
			wantStatus: domain.StatusFailed,
			wantError:  "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if evt.EntityID != tt.wantID {
				t.Errorf("EntityID = %q, want %q", evt.EntityID, tt.wantID)
			}
			if evt.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", evt.Status, tt.wantStatus)
			}
			if evt.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", evt.Error, tt.wantError)
			}
			if string(evt.Detail) != tt.wantDetail {
				t.Errorf("Detail = %s, want %s", evt.Detail, tt.wantDetail)
			}
		})
	}
}

func TestDecode_Progress(t *testing.T) {
	evt, err := Decode([]byte(`data: {"fileId":"A","status":"success","progress":66.5}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if evt.Progress == nil || *evt.Progress != 66.5 {
		t.Errorf("Progress = %v, want 66.5", evt.Progress)
	}

	evt, err = Decode([]byte(`data: {"fileId":"A","status":"success","progress":"half"}`))
	if err != nil {
		t.Fatalf("Decode() with non-numeric progress error = %v", err)
	}
	if evt.Progress != nil {
		t.Errorf("Progress = %v, want nil for non-numeric value", *evt.Progress)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		empty bool
	}{
		{name: "malformed json", frame: `data: {"file_id":"A","status":`},
		{name: "missing id", frame: `data: {"status":"success"}`},
		{name: "empty id", frame: `data: {"file_id":"","status":"success"}`},
		{name: "non-string id", frame: `data: {"file_id":42,"status":"success"}`},
		{name: "unknown status", frame: `data: {"file_id":"A","status":"exploded"}`},
		{name: "no status and no outcome", frame: `data: {"file_id":"A"}`},
		{name: "comment only", frame: ": keep-alive", empty: true},
		{name: "event only", frame: "event: ping", empty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := Decode([]byte(tt.frame))
			if err == nil {
				t.Fatalf("Decode() = %+v, want error", evt)
			}
			var se *domain.StreamError
			if !errors.As(err, &se) {
				t.Fatalf("Decode() error type = %T, want *domain.StreamError", err)
			}
			if se.Kind != domain.ErrorKindDecode {
				t.Errorf("Kind = %q, want %q", se.Kind, domain.ErrorKindDecode)
			}
			if string(se.Frame) != tt.frame {
				t.Errorf("Frame = %q, want %q", se.Frame, tt.frame)
			}
			if got := errors.Is(err, domain.ErrEmptyFrame); got != tt.empty {
				t.Errorf("errors.Is(ErrEmptyFrame) = %v, want %v", got, tt.empty)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]domain.Status{
		"pending":   domain.StatusPending,
		"success":   domain.StatusSucceeded,
		"Succeeded": domain.StatusSucceeded,
		" failed ":  domain.StatusFailed,
		"error":     domain.StatusFailed,
	}
	for in, want := range tests {
		got, ok := ParseStatus(in)
		if !ok || got != want {
			t.Errorf("ParseStatus(%q) = %q, %v; want %q, true", in, got, ok, want)
		}
	}
	for _, in := range []string{"duplicate", "processing", "in_progress", "completed", ""} {
		if _, ok := ParseStatus(in); ok {
			t.Errorf("ParseStatus(%q) ok = true, want false", in)
		}
	}
}

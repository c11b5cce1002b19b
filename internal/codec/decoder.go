// Package codec decodes progress frames into typed events.
//
// The upstream emits two payload shapes. Ingestion frames carry an explicit
// status:
//
//	data: {"fileId":"A","status":"success","ingestionDetails":{...},"progress":50}
//
// Analysis frames carry the result without a status, or an error:
//
//	data: {"fileId":"A","fileName":"a.pdf","analysis":{...}}
//	data: {"fileId":"B","error":"Processing error: ..."}
//
// Field names are accepted in both camelCase and snake_case where the
// upstream has used both. Unknown fields are ignored.
package codec

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
)

// wirePayload mirrors the JSON record carried by one frame.
type wirePayload struct {
	FileID     *string         `json:"fileId"`
	FileIDAlt  *string         `json:"file_id"`
	Status     *string         `json:"status"`
	FileName   string          `json:"fileName"`
	FileName2  string          `json:"file_name"`
	Error      *string         `json:"error"`
	Ingestion  json.RawMessage `json:"ingestionDetails"`
	Ingestion2 json.RawMessage `json:"ingestion_details"`
	Analysis   json.RawMessage `json:"analysis"`
	Progress   json.RawMessage `json:"progress"`
}

// analysisError is the subset of an analysis object that signals failure.
type analysisError struct {
	Error *string `json:"error"`
}

// Decode parses one frame into an Event. Failures are returned as a
// *domain.StreamError of kind ErrorKindDecode carrying the raw frame; frames
// with no data lines wrap domain.ErrEmptyFrame.
func Decode(frame []byte) (*domain.Event, error) {
	data, ok := Payload(frame)
	if !ok {
		return nil, domain.ErrDecode("no data lines", frame).WithCause(domain.ErrEmptyFrame)
	}

	var p wirePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, domain.ErrDecode("malformed payload", frame).WithCause(err)
	}

	id := firstString(p.FileID, p.FileIDAlt)
	if id == "" {
		return nil, domain.ErrDecode("missing file id", frame)
	}

	evt := &domain.Event{
		EntityID: domain.EntityID(id),
		Detail:   firstRaw(p.Ingestion, p.Ingestion2, p.Analysis),
		FileName: p.FileName,
		Progress: parseProgress(p.Progress),
	}
	if evt.FileName == "" {
		evt.FileName = p.FileName2
	}
	if p.Error != nil {
		evt.Error = *p.Error
	}

	if p.Status != nil {
		status, ok := ParseStatus(*p.Status)
		if !ok {
			return nil, domain.ErrDecode("unknown status "+*p.Status, frame).WithEntity(evt.EntityID)
		}
		evt.Status = status
		return evt, nil
	}

	// No explicit status: infer it the way the analysis stream reports outcomes.
	switch {
	case evt.Error != "":
		evt.Status = domain.StatusFailed
	case nestedError(p.Analysis) != "":
		evt.Status = domain.StatusFailed
		evt.Error = nestedError(p.Analysis)
	case evt.Detail != nil:
		evt.Status = domain.StatusSucceeded
	default:
		return nil, domain.ErrDecode("missing status", frame).WithEntity(evt.EntityID)
	}
	return evt, nil
}

// Payload extracts the data carried by a frame. Multiple data lines are
// joined with a newline. It reports false when the frame has no data line,
// as with comment-only keep-alives.
func Payload(frame []byte) ([]byte, bool) {
	var (
		out   []byte
		found bool
	)
	for _, line := range bytes.Split(frame, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if found {
			out = append(out, '\n')
		}
		out = append(out, value...)
		found = true
	}
	return out, found
}

// ParseStatus maps an upstream status string to a Status.
func ParseStatus(s string) (domain.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return domain.StatusPending, true
	case "success", "succeeded":
		return domain.StatusSucceeded, true
	case "failed", "fail", "error":
		return domain.StatusFailed, true
	}
	return "", false
}

func firstString(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		if isPresent(v) {
			return v
		}
	}
	return nil
}

func isPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// parseProgress is lenient: the field is informational, so a value of the
// wrong type is ignored rather than failing the frame.
func parseProgress(raw json.RawMessage) *float64 {
	if !isPresent(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

func nestedError(analysis json.RawMessage) string {
	trimmed := bytes.TrimSpace(analysis)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var ae analysisError
	if err := json.Unmarshal(trimmed, &ae); err != nil || ae.Error == nil {
		return ""
	}
	return *ae.Error
}

package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/NordCoder/Heartline/internal/domain/run"
)

const (
	// MaxBodyBytes bounds the inbound report before JSON parsing.
	MaxBodyBytes = 10240
	// MaxErrorMessageLen bounds the caller-supplied error string.
	MaxErrorMessageLen = 1000
	// MaxDurationMS is one hour in milliseconds, inclusive.
	MaxDurationMS = 3_600_000
)

var (
	// ErrValidation marks every client-input rejection; the HTTP edge maps
	// it to 400. Specific causes wrap it.
	ErrValidation   = errors.New("invalid report")
	ErrBodyTooLarge = errors.New("request body exceeds 10240 bytes")
)

// Report is a normalized, validated heartbeat payload. An absent body
// yields the zero defaults: success status and an empty payload object.
type Report struct {
	Status       run.Status
	Payload      json.RawMessage
	ErrorMessage string
	DurationMS   *int64
}

type reportBody struct {
	Status       *string         `json:"status"`
	Payload      json.RawMessage `json:"payload"`
	ErrorMessage *string         `json:"error_message"`
	DurationMS   json.RawMessage `json:"duration_ms"`
}

// ParseReport validates a raw request body. It never mutates state; a
// non-nil error means the ping must be rejected before any I/O.
func ParseReport(data []byte) (*Report, error) {
	if len(data) > MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	rep := &Report{
		Status:  run.StatusSuccess,
		Payload: json.RawMessage(`{}`),
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return rep, nil
	}

	var body reportBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrValidation, err)
	}

	if body.Status != nil {
		switch run.Status(*body.Status) {
		case run.StatusSuccess, run.StatusFailed, run.StatusPending:
			rep.Status = run.Status(*body.Status)
		default:
			return nil, fmt.Errorf("%w: status must be one of success, failed, pending", ErrValidation)
		}
	}

	if len(body.Payload) > 0 && !bytes.Equal(bytes.TrimSpace(body.Payload), []byte("null")) {
		rep.Payload = body.Payload
	}

	if body.ErrorMessage != nil {
		if len(*body.ErrorMessage) > MaxErrorMessageLen {
			return nil, fmt.Errorf("%w: error_message exceeds %d characters", ErrValidation, MaxErrorMessageLen)
		}
		rep.ErrorMessage = *body.ErrorMessage
	}

	if d, err := parseDuration(body.DurationMS); err != nil {
		return nil, err
	} else if d != nil {
		rep.DurationMS = d
	}

	return rep, nil
}

func parseDuration(raw json.RawMessage) (*int64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	n, err := strconv.ParseInt(string(trimmed), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: duration_ms must be an integer", ErrValidation)
	}
	if n < 0 || n > MaxDurationMS {
		return nil, fmt.Errorf("%w: duration_ms must be between 0 and %d", ErrValidation, MaxDurationMS)
	}
	return &n, nil
}

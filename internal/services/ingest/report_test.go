package ingest

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/NordCoder/Heartline/internal/domain/run"

	"github.com/stretchr/testify/require"
)

func TestParseReport_EmptyBodyDefaults(t *testing.T) {
	for _, body := range [][]byte{nil, {}, []byte("  \n")} {
		rep, err := ParseReport(body)
		require.NoError(t, err)
		require.Equal(t, run.StatusSuccess, rep.Status)
		require.JSONEq(t, `{}`, string(rep.Payload))
		require.Empty(t, rep.ErrorMessage)
		require.Nil(t, rep.DurationMS)
	}
}

func TestParseReport_Status(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    run.Status
		wantErr bool
	}{
		{name: "absent defaults to success", body: `{}`, want: run.StatusSuccess},
		{name: "success", body: `{"status":"success"}`, want: run.StatusSuccess},
		{name: "failed", body: `{"status":"failed"}`, want: run.StatusFailed},
		{name: "pending", body: `{"status":"pending"}`, want: run.StatusPending},
		{name: "unknown rejected", body: `{"status":"ok"}`, wantErr: true},
		{name: "empty string rejected", body: `{"status":""}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := ParseReport([]byte(tt.body))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, rep.Status)
		})
	}
}

func TestParseReport_MalformedJSON(t *testing.T) {
	_, err := ParseReport([]byte(`{"status":`))
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseReport_ErrorMessageBounds(t *testing.T) {
	ok, err := json.Marshal(map[string]string{"error_message": strings.Repeat("x", MaxErrorMessageLen)})
	require.NoError(t, err)
	rep, err := ParseReport(ok)
	require.NoError(t, err)
	require.Len(t, rep.ErrorMessage, MaxErrorMessageLen)

	tooLong, err := json.Marshal(map[string]string{"error_message": strings.Repeat("x", MaxErrorMessageLen+1)})
	require.NoError(t, err)
	_, err = ParseReport(tooLong)
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseReport_DurationBounds(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int64
		wantErr bool
	}{
		{name: "zero", body: `{"duration_ms":0}`, want: 0},
		{name: "one hour", body: `{"duration_ms":3600000}`, want: 3600000},
		{name: "negative", body: `{"duration_ms":-1}`, wantErr: true},
		{name: "over an hour", body: `{"duration_ms":3600001}`, wantErr: true},
		{name: "string", body: `{"duration_ms":"abc"}`, wantErr: true},
		{name: "float", body: `{"duration_ms":1.5}`, wantErr: true},
		{name: "null is absent", body: `{"duration_ms":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := ParseReport([]byte(tt.body))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			if tt.name == "null is absent" {
				require.Nil(t, rep.DurationMS)
				return
			}
			require.NotNil(t, rep.DurationMS)
			require.Equal(t, tt.want, *rep.DurationMS)
		})
	}
}

func TestParseReport_BodySizeBounds(t *testing.T) {
	// Exactly at the limit: pad a valid document with trailing spaces.
	doc := []byte(`{"status":"success"}`)
	exact := append(doc, bytes.Repeat([]byte(" "), MaxBodyBytes-len(doc))...)
	require.Len(t, exact, MaxBodyBytes)
	_, err := ParseReport(exact)
	require.NoError(t, err)

	_, err = ParseReport(append(exact, ' '))
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestParseReport_PayloadPassthrough(t *testing.T) {
	rep, err := ParseReport([]byte(`{"payload":{"rows":3,"tag":"nightly"}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":3,"tag":"nightly"}`, string(rep.Payload))

	rep, err = ParseReport([]byte(`{"payload":null}`))
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(rep.Payload))
}

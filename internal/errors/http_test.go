package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	r.Header.Set("X-Request-Id", "rid-1")
	rr := httptest.NewRecorder()

	WriteError(rr, r, http.StatusUnauthorized, "Authentication required")

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
	require.Equal(t, "Authentication required", body["message"])
	require.Equal(t, "rid-1", body["request_id"])
}

func TestWriteError_NoRequestID(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, nil, http.StatusInternalServerError, MessageInternal)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	_, ok := body["request_id"]
	require.False(t, ok)
	require.Equal(t, MessageInternal, body["message"])
}

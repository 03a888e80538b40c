package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var seen string
	handler := RequestIDMiddleware(&logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		RequestLogger(r).Info().Msg("handled")
	}))

	t.Run("keeps the caller's ID", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodPost, "/v1/room/combine", nil)
		req.Header.Set(RequestIDHeader, "panel-7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, "panel-7", seen)
		require.Equal(t, "panel-7", rec.Header().Get(RequestIDHeader))

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.Equal(t, "panel-7", line["request_id"])
		require.Equal(t, "handled", line["message"])
	})

	t.Run("assigns one when missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/room", nil))

		require.NotEmpty(t, seen)
		require.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("replaces an oversized ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/room", nil)
		req.Header.Set(RequestIDHeader, string(bytes.Repeat([]byte("x"), maxRequestIDLength+1)))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.Len(t, seen, 36)
	})
}

func TestRequestLogger_FallsBackOutsideMiddleware(t *testing.T) {
	require.NotNil(t, RequestLogger(nil))
	require.NotNil(t, RequestLogger(httptest.NewRequest(http.MethodGet, "/", nil)))
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteError(rec, http.StatusConflict, "ORG_CONFLICT", "busy", map[string]string{"tenant_id": "t"}))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "ORG_CONFLICT", env.Code)
	require.Equal(t, "t", env.Meta["tenant_id"])
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	var p payload
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"HQ"}`))
	require.NoError(t, DecodeJSON(r, 1024, &p))
	require.Equal(t, "HQ", p.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"HQ","extra":1}`))
	require.Error(t, DecodeJSON(r, 1024, &p))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"HQ"} {}`))
	require.ErrorContains(t, DecodeJSON(r, 1024, &p), "trailing")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`"}`))
	require.ErrorIs(t, DecodeJSON(r, 16, &p), ErrBodyTooLarge)
}

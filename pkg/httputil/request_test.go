package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "empty body", body: ``, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest["name"])
			}
		})
	}
}

type deleteRequest struct {
	Prefix  string `json:"prefix" validate:"required,min=5"`
	Created int64  `json:"created" validate:"required,gt=0"`
}

func TestParseAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"prefix":"abcde","created":1714564800000}`},
		{name: "short prefix", body: `{"prefix":"abc","created":1}`, wantErr: "prefix is invalid (min)"},
		{name: "missing created", body: `{"prefix":"abcdef"}`, wantErr: "created is invalid (required)"},
		{name: "not json", body: `nope`, wantErr: "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/_/api/v1/token", bytes.NewBufferString(tt.body))
			var dest deleteRequest
			err := ParseAndValidate(req, &dest)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParsePathString(t *testing.T) {
	req := httptest.NewRequest("GET", "/@scope%2fpkg", nil)
	req = mux.SetURLVars(req, map[string]string{"package": "@scope%2fpkg"})

	val, err := ParsePathString(req, "package")
	require.NoError(t, err)
	assert.Equal(t, "@scope/pkg", val)

	_, err = ParsePathString(req, "missing")
	assert.Error(t, err)

	bad := mux.SetURLVars(httptest.NewRequest("GET", "/", nil), map[string]string{"package": "%zz"})
	_, err = ParsePathString(bad, "package")
	assert.Error(t, err)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/_/done?ott=abc", nil)
	assert.Equal(t, "abc", ParseQueryString(req, "ott", ""))
	assert.Equal(t, "fallback", ParseQueryString(req, "missing", "fallback"))
}

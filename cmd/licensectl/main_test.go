package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/licenses/verify", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if bytes.Contains(body, []byte("ffa03e75c6e10000")) {
			w.Write([]byte(`{"success":true,"is_valid":true,"cached":false}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"Device not found"}`))
	})
	mux.HandleFunc("/api/v1/packages/ffa03e75c6e10000", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Bundle-Plan", "pro")
		w.Write([]byte{0x01, 0x02, 0x03})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunVerify(t *testing.T) {
	srv := newTestServer(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-server", srv.URL, "verify", "ffa03e75c6e10000"}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), `"is_valid": true`)

	stdout.Reset()
	code = run([]string{"-server", srv.URL, "verify", "0000000000000000"}, &stdout, &stderr)
	assert.Equal(t, exitFail, code)
	assert.Contains(t, stdout.String(), "Device not found")
}

func TestRunBuild(t *testing.T) {
	srv := newTestServer(t)
	out := filepath.Join(t.TempDir(), "bundle.pkg")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-server", srv.URL, "build", "-o", out, "ffa03e75c6e10000"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, data)
	assert.Contains(t, stdout.String(), "plan pro")

	code = run([]string{"-server", srv.URL, "build", "-o", out, "0000000000000000"}, &stdout, &stderr)
	assert.Equal(t, exitFail, code)
}

func TestRunUsage(t *testing.T) {
	tests := [][]string{
		{},
		{"unknown"},
		{"verify"},
		{"verify", "a", "b"},
		{"build"},
		{"-nope"},
	}
	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitUsage, run(args, &stdout, &stderr), args)
	}
}

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/backplot/backplot/internal/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	assert.Equal(t, "http://localhost:5000", c.baseURL)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestHealthcheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthcheck", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	assert.NoError(t, New(server.URL, "").Healthcheck(context.Background()))
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := New(server.URL, "").Healthcheck(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
}

func TestHealthcheck_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	assert.Error(t, New(url, "").Healthcheck(context.Background()))
}

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bracket_20260102_030405.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1}`), 0o644))
	return path
}

func TestUpload(t *testing.T) {
	path := writeExport(t)
	info := &program.Info{
		Name:     "bracket",
		Units:    "mm",
		Status:   3,
		Recorded: 12,
		LoadedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, UploadPath, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "key", r.FormValue("secret"))
		assert.Equal(t, "bracket_20260102_030405.json", r.FormValue("filename"))
		assert.Equal(t, "bracket", r.FormValue("program"))
		assert.Equal(t, "mm", r.FormValue("units"))
		assert.Equal(t, "3", r.FormValue("status"))
		assert.Equal(t, "12", r.FormValue("segments"))
		assert.Equal(t, "2026-01-02T03:04:05Z", r.FormValue("loadedAt"))

		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, `{"version":1}`, string(body))

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	assert.NoError(t, New(server.URL, "key").Upload(context.Background(), path, info))
}

func TestUpload_FileNotFound(t *testing.T) {
	err := New("http://localhost", "").Upload(context.Background(), filepath.Join(t.TempDir(), "none.json"), &program.Info{})
	assert.ErrorContains(t, err, "opening export")
}

func TestUpload_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := New(server.URL, "wrong").Upload(context.Background(), writeExport(t), &program.Info{Name: "x"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "upload", se.Op)
	assert.Equal(t, http.StatusForbidden, se.Status)
}

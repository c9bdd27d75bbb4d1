package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"deplopush/internal/project"
	"deplopush/internal/testserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *testserver.Server) *Client {
	t.Helper()
	ts := testserver.Start(t, srv)
	c, err := New(ts.URL + "/")
	require.NoError(t, err)
	return c
}

func writeArchive(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestNew(t *testing.T) {
	c, err := New("  http://deploy.local:9421/  ")
	require.NoError(t, err)
	assert.Equal(t, "http://deploy.local:9421", c.BaseURL())

	_, err = New("   ")
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := testserver.New(nil)
	c := newTestClient(t, srv)

	h := c.Health(context.Background())
	assert.True(t, h.Healthy)
	assert.Equal(t, http.StatusOK, h.Status)
	assert.Contains(t, string(h.Payload), `"status":"ok"`)
	assert.NoError(t, h.Err)

	srv.SetHealthStatus(http.StatusServiceUnavailable)
	h = c.Health(context.Background())
	assert.False(t, h.Healthy)
	assert.Equal(t, http.StatusServiceUnavailable, h.Status)

	var apiErr APIError
	require.ErrorAs(t, h.Err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, 2, srv.HealthHits())
}

func TestHealthNonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>ok</html>")
	}))
	defer ts.Close()

	c, err := New(ts.URL)
	require.NoError(t, err)

	h := c.Health(context.Background())
	assert.False(t, h.Healthy)
	assert.Equal(t, http.StatusOK, h.Status)
	assert.Error(t, h.Err)
}

func TestHealthUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := New(url)
	require.NoError(t, err)

	h := c.Health(context.Background())
	assert.False(t, h.Healthy)
	assert.Zero(t, h.Status)
	assert.Error(t, h.Err)
}

func TestListProjects(t *testing.T) {
	srv := testserver.New(nil)
	c := newTestClient(t, srv)

	projects, err := c.ListProjects(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, projects)
	assert.Empty(t, projects)

	srv.Registry.Put(project.Project{Name: "web_api", Path: "/srv/deploy/web_api"})
	srv.Registry.Put(project.Project{Name: "blog", Path: "/srv/deploy/blog"})

	projects, err = c.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []project.Project{
		{Name: "blog", Path: "/srv/deploy/blog"},
		{Name: "web_api", Path: "/srv/deploy/web_api"},
	}, projects)
}

func TestListProjectsServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"database locked"}`)
	}))
	defer ts.Close()

	c, err := New(ts.URL)
	require.NoError(t, err)

	_, err = c.ListProjects(context.Background())
	var apiErr APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "database locked", apiErr.Message)
}

func TestUploadSuccess(t *testing.T) {
	srv := testserver.New(nil)
	c := newTestClient(t, srv)
	path := writeArchive(t, "site.tar.gz", 300_000)

	resp, err := c.Upload(context.Background(), path, "prod_site")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/srv/deploy/prod_site", resp.DeployPath)
	assert.NotEmpty(t, resp.RequestID)

	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "prod_site", uploads[0].Project)
	assert.Equal(t, "site.tar.gz", uploads[0].Filename)
	assert.Equal(t, int64(300_000), uploads[0].Size)
	assert.Equal(t, resp.RequestID, uploads[0].RequestID)
	assert.True(t, uploads[0].Accepted)

	_, err = srv.Registry.Get("prod_site")
	assert.NoError(t, err)
}

func TestUploadEmptyFile(t *testing.T) {
	srv := testserver.New(nil)
	c := newTestClient(t, srv)
	path := writeArchive(t, "empty.zip", 0)

	resp, err := c.Upload(context.Background(), path, "empty")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(0), srv.Uploads()[0].Size)
}

func TestUploadWithProgress(t *testing.T) {
	srv := testserver.New(nil)
	ts := testserver.Start(t, srv)
	c, err := New(ts.URL, WithProgress(io.Discard))
	require.NoError(t, err)

	resp, err := c.Upload(context.Background(), writeArchive(t, "app.zip", 64_000), "app")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(64_000), srv.Uploads()[0].Size)
}

func TestUploadRejectedBySuccessFalse(t *testing.T) {
	srv := testserver.New(nil)
	srv.Script(testserver.Response{
		Status: http.StatusOK,
		Body:   map[string]interface{}{"success": false, "message": "disk full"},
	})
	c := newTestClient(t, srv)

	resp, err := c.Upload(context.Background(), writeArchive(t, "a.tar", 10), "a")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "disk full", resp.Message)
}

func TestUploadRejectedByStructured4xx(t *testing.T) {
	srv := testserver.New(nil)
	c := newTestClient(t, srv)

	// invalid project name is refused by the server with a structured 400
	resp, err := c.Upload(context.Background(), writeArchive(t, "a.tar", 10), "-bad")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, resp.Message)
}

func TestUploadTransientFailures(t *testing.T) {
	tests := []struct {
		name     string
		response testserver.Response
		status   int
	}{
		{
			name:     "server error",
			response: testserver.Response{Status: http.StatusInternalServerError, Body: map[string]string{"error": "boom"}},
			status:   http.StatusInternalServerError,
		},
		{
			name:     "unstructured 4xx",
			response: testserver.Response{Status: http.StatusRequestEntityTooLarge, Body: "too large"},
			status:   http.StatusRequestEntityTooLarge,
		},
		{
			name:     "2xx with invalid JSON",
			response: testserver.Response{Status: http.StatusOK, Body: "<html>"},
			status:   http.StatusOK,
		},
		{
			name:     "dropped connection",
			response: testserver.Response{Drop: true},
			status:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testserver.New(nil)
			srv.Script(tt.response)
			c := newTestClient(t, srv)

			resp, err := c.Upload(context.Background(), writeArchive(t, "a.zip", 2048), "a")
			assert.Nil(t, resp)

			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
			assert.Equal(t, tt.status, transportErr.Status)
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	srv := testserver.New(nil)
	c := newTestClient(t, srv)

	_, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.zip"), "gone")

	var localErr *LocalError
	require.ErrorAs(t, err, &localErr)
	assert.Equal(t, "open", localErr.Op)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Empty(t, srv.Uploads())
}

func TestUploadCancelled(t *testing.T) {
	srv := testserver.New(nil)
	c := newTestClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Upload(ctx, writeArchive(t, "a.zip", 10), "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseDeployResponse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		success   bool
		transient bool
	}{
		{"accepted", 200, `{"success":true,"deploy_path":"/srv/x"}`, true, false},
		{"created", 201, `{"success":true}`, true, false},
		{"success false", 200, `{"success":false,"message":"nope"}`, false, false},
		{"missing success key", 200, `{"message":"ok"}`, false, false},
		{"structured 409", 409, `{"success":false,"error":"locked"}`, false, false},
		{"4xx without success key", 404, `{"error":"not found"}`, false, true},
		{"4xx plain text", 400, `bad request`, false, true},
		{"5xx structured", 502, `{"success":false}`, false, true},
		{"2xx invalid json", 200, `not json`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := parseDeployResponse(tt.status, []byte(tt.body), "rid")
			if tt.transient {
				var transportErr *TransportError
				require.ErrorAs(t, err, &transportErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.success, resp.Success)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "rid", resp.RequestID)
		})
	}
}

func TestExtractMessage(t *testing.T) {
	assert.Equal(t, "", extractMessage(nil))
	assert.Equal(t, "m", extractMessage([]byte(`{"message":"m","error":"e"}`)))
	assert.Equal(t, "e", extractMessage([]byte(`{"error":"e"}`)))
	assert.Equal(t, "plain", extractMessage([]byte(" plain \n")))
}

func TestUploadRateLimited(t *testing.T) {
	srv := testserver.New(nil)
	srv.UploadsPerMinute = 1
	c := newTestClient(t, srv)
	path := writeArchive(t, "a.zip", 10)

	_, err := c.Upload(context.Background(), path, "a")
	require.NoError(t, err)

	_, err = c.Upload(context.Background(), path, "a")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusTooManyRequests, transportErr.Status)
}

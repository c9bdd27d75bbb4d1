package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"deplopush/internal/project"
	"deplopush/internal/testserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// isolate runs the test from an empty working directory so no config or
// .env file is picked up, and returns a directory holding the given files.
func isolate(t *testing.T, files ...string) string {
	t.Helper()
	t.Chdir(t.TempDir())

	dir := t.TempDir()
	for _, f := range files {
		path := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("data:"+f), 0644))
	}
	return dir
}

func TestDeploy_AllSucceed(t *testing.T) {
	dir := isolate(t, "a.zip", "b.tar.gz", ".hidden.zip", "notes.txt")
	srv := testserver.New(nil)
	ts := testserver.Start(t, srv)

	res := runCLI(t, "--server", ts.URL+"/", "--dir", dir, "--log", "")

	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "succeeded 2, failed 0, total 2")
	assert.Len(t, srv.Uploads(), 2)
}

func TestDeploy_UnhealthyServer(t *testing.T) {
	dir := isolate(t, "a.zip")
	srv := testserver.New(nil)
	srv.SetHealthStatus(http.StatusServiceUnavailable)
	ts := testserver.Start(t, srv)

	res := runCLI(t, "--server", ts.URL, "--dir", dir, "--log", "")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "aborted")
	assert.Empty(t, srv.Uploads())
}

func TestDeploy_EmptyDirectory(t *testing.T) {
	dir := isolate(t, "readme.md")
	srv := testserver.New(nil)
	ts := testserver.Start(t, srv)

	res := runCLI(t, "--server", ts.URL, "--dir", dir, "--log", "")

	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "nothing to deploy")
}

func TestDeploy_RejectedArchiveFailsRun(t *testing.T) {
	dir := isolate(t, "a.zip", "b.zip")
	srv := testserver.New(nil)
	srv.Script(testserver.Response{
		Status: http.StatusOK,
		Body:   map[string]interface{}{"success": false, "message": "disk full"},
	})
	ts := testserver.Start(t, srv)

	res := runCLI(t, "--server", ts.URL, "--dir", dir, "--log", "")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "disk full")
	assert.Contains(t, res.stdout, "succeeded 1, failed 1, total 2")
}

func TestDeploy_ProjectPrefix(t *testing.T) {
	dir := isolate(t, "site.tgz")
	srv := testserver.New(nil)
	ts := testserver.Start(t, srv)

	res := runCLI(t, "--server", ts.URL, "--dir", dir, "--project-prefix", "staging", "--log", "")

	require.Equal(t, 0, res.code, res.stderr)
	require.Len(t, srv.Uploads(), 1)
	assert.Equal(t, "staging_site", srv.Uploads()[0].Project)
}

func TestDeploy_LogAndMetricsFiles(t *testing.T) {
	dir := isolate(t, "a.zip")
	srv := testserver.New(nil)
	ts := testserver.Start(t, srv)

	out := t.TempDir()
	logPath := filepath.Join(out, "logs", "deplopush.log")
	metricsPath := filepath.Join(out, "deplopush.prom")

	res := runCLI(t, "--server", ts.URL, "--dir", dir, "--log", logPath, "--metrics-file", metricsPath)
	require.Equal(t, 0, res.code, res.stderr)

	logData, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), `"msg":"Deployment run finished"`)
	assert.Contains(t, string(logData), `"run_id":`)

	metricsData, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metricsData), `deplopush_run_uploads_total{outcome="success"} 1`)

	// a second run appends to the same log
	res = runCLI(t, "--server", ts.URL, "--dir", dir, "--log", logPath)
	require.Equal(t, 0, res.code, res.stderr)
	appended, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Greater(t, len(appended), len(logData))
}

func TestDeploy_DryRun(t *testing.T) {
	dir := isolate(t, "api.zip", "web.tar.bz2")
	srv := testserver.New(nil)
	ts := testserver.Start(t, srv)

	res := runCLI(t, "--server", ts.URL, "--dir", dir, "--project-prefix", "prod", "--dry-run", "--log", "")

	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "prod_api")
	assert.Contains(t, res.stdout, "prod_web")
	assert.Empty(t, srv.Uploads())
	assert.Zero(t, srv.HealthHits())
}

func TestHealthFlag(t *testing.T) {
	isolate(t)
	srv := testserver.New(nil)
	ts := testserver.Start(t, srv)

	res := runCLI(t, "--server", ts.URL+"/", "--health", "--log", "")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "healthy "+ts.URL+"\n")

	srv.SetHealthStatus(http.StatusInternalServerError)
	res = runCLI(t, "--server", ts.URL, "--health", "--log", "")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "unhealthy")
	assert.Empty(t, srv.Uploads())
}

func TestListFlag(t *testing.T) {
	isolate(t)
	srv := testserver.New(nil)
	ts := testserver.Start(t, srv)

	res := runCLI(t, "--server", ts.URL, "--list", "--log", "")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "no projects deployed")

	srv.Registry.Put(project.Project{Name: "blog", Path: "/srv/deploy/blog"})
	res = runCLI(t, "--server", ts.URL, "--list", "--log", "")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "blog")
	assert.Contains(t, res.stdout, "/srv/deploy/blog")
	assert.Equal(t, 2, srv.ListHits())
}

func TestListFlag_UnreachableServer(t *testing.T) {
	isolate(t)

	res := runCLI(t, "--server", "http://127.0.0.1:1", "--list", "--log", "")

	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "no projects deployed")
}

func TestInvalidConfiguration(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		expected string
	}{
		{"zero retries", []string{"--max-retries", "0"}, "max_retries"},
		{"unsupported scheme", []string{"--server", "ftp://deploy.local"}, "server"},
		{"negative rate", []string{"--rate", "-1"}, "uploads_per_minute"},
		{"missing config file", []string{"--config", "missing.yaml"}, "config file not found"},
		{"unexpected argument", []string{"extra"}, "unknown command"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)

			res := runCLI(t, append(tc.args, "--log", "")...)

			assert.Equal(t, 1, res.code)
			assert.Contains(t, res.stderr, tc.expected)
		})
	}
}

func TestConfigFile(t *testing.T) {
	dir := isolate(t, "site.zip")
	srv := testserver.New(nil)
	ts := testserver.Start(t, srv)

	cfgPath := filepath.Join(t.TempDir(), "deplopush.yaml")
	yaml := "server: " + ts.URL + "\n" +
		"dir: " + dir + "\n" +
		"project_prefix: fromfile\n" +
		"log_file: \"\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0644))

	res := runCLI(t, "-c", cfgPath)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "fromfile_site", srv.Uploads()[0].Project)

	// explicit flags win over the file
	res = runCLI(t, "-c", cfgPath, "--project-prefix", "flag")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "flag_site", srv.Uploads()[1].Project)
}

func TestVersionCommand(t *testing.T) {
	res := runCLI(t, "version")

	assert.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "deplopush version dev")
	assert.Contains(t, res.stdout, "Go version:")
}

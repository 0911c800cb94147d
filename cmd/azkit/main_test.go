package main

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/azkit/internal/lock"
	"github.com/mattjoyce/azkit/internal/remotetest"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func runCapture(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

// testEnv isolates HOME and the config dir, and points the default profile
// at a fake server with user alice.
type testEnv struct {
	srv       *remotetest.Server
	configDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := remotetest.New(t)
	srv.AddUser("alice", "pw")

	home := t.TempDir()
	configDir := filepath.Join(home, "azkit")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	cfg := fmt.Sprintf(`log_level: error
state:
  path: history.db
defaults:
  profile: dev
profiles:
  dev:
    url: %s
`, srv.Endpoint("alice"))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(cfg), 0o600))

	t.Setenv("HOME", home)
	t.Setenv("AZKIT_CONFIG_DIR", configDir)
	t.Setenv(envPassword, "pw")
	return &testEnv{srv: srv, configDir: configDir}
}

func writeManifest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "load.pig")
	require.NoError(t, os.WriteFile(script, []byte("A = LOAD 'x';\n"), 0o600))
	manifest := `project: reports
defaults:
  retries: 2
jobs:
  load:
    type: pig
    script: load.pig
  report:
    options:
      - {type: command, command: "echo done"}
    depends_on: [load]
`
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))
	return path
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := runCapture(t, "bogus")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: bogus")
}

func TestRunVersionJSON(t *testing.T) {
	orig := version
	version = "1.2.3"
	t.Cleanup(func() { version = orig })

	code, stdout, _ := runCapture(t, "version", "--json")
	require.Equal(t, 0, code)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "1.2.3", info.Version)
}

func TestNounHelp(t *testing.T) {
	for _, noun := range []string{"project", "flow", "exec", "history", "config"} {
		code, stdout, _ := runCapture(t, noun, "help")
		assert.Equal(t, 0, code, noun)
		assert.Contains(t, stdout, "azkit "+noun, noun)
	}
}

func TestProjectBuildAndView(t *testing.T) {
	manifest := writeManifest(t)
	out := filepath.Join(t.TempDir(), "reports.zip")

	code, stdout, stderr := runCapture(t, "project", "build", "-f", manifest, "-o", out)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Built "+out+" (2 jobs, 1 files)")
	assert.Contains(t, stdout, "blake3: ")

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.True(t, slices.Contains(names, "load.job"))
	assert.True(t, slices.Contains(names, "report.job"))

	code, stdout, stderr = runCapture(t, "project", "view", "-f", manifest)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Project: reports")
	assert.Contains(t, stdout, "dependencies=load")
	assert.Contains(t, stdout, "retries=2")
}

func TestProjectBuildRequiresManifest(t *testing.T) {
	code, _, stderr := runCapture(t, "project", "build")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "-f FILE is required")
}

func TestProjectUploadCreatesRecordsAndCachesSession(t *testing.T) {
	env := newTestEnv(t)
	manifest := writeManifest(t)

	code, stdout, stderr := runCapture(t, "project", "upload", "-f", manifest, "-p", "dev", "--create")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Uploaded reports")
	assert.True(t, env.srv.HasProject("reports"))
	require.Len(t, env.srv.Uploads(), 1)
	assert.Equal(t, "file.zip", env.srv.Uploads()[0].FileName)
	assert.Equal(t, 1, env.srv.Logins())

	// Uploading again reuses the cached token and tolerates the existing project.
	code, _, stderr = runCapture(t, "project", "upload", "-f", manifest, "--create")
	require.Equal(t, 0, code, stderr)
	assert.Len(t, env.srv.Uploads(), 2)
	assert.Equal(t, 1, env.srv.Logins())

	code, stdout, stderr = runCapture(t, "history", "list", "--uploads", "--json")
	require.Equal(t, 0, code, stderr)
	var listing historyListing
	require.NoError(t, json.Unmarshal([]byte(stdout), &listing))
	require.Len(t, listing.Uploads, 2)
	assert.Equal(t, "reports", listing.Uploads[0].Project)
	assert.Equal(t, "2", listing.Uploads[0].Version)
	assert.Len(t, listing.Uploads[0].Digest, 64)
}

func TestProjectCreateAndDeleteWithEndpoint(t *testing.T) {
	env := newTestEnv(t)
	endpoint := env.srv.Endpoint("alice")

	code, stdout, stderr := runCapture(t, "project", "create", endpoint, "scratch", "--description", "tmp")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Created project scratch")

	code, _, stderr = runCapture(t, "project", "create", endpoint, "scratch")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Project already exists.")

	code, stdout, stderr = runCapture(t, "project", "delete", endpoint, "scratch")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Deleted project scratch")
	assert.False(t, env.srv.HasProject("scratch"))
}

func TestFlowInfoAndRunSelectedJobs(t *testing.T) {
	env := newTestEnv(t)
	env.srv.AddFlow("reports", "daily", "extract", "load", "report")

	code, stdout, stderr := runCapture(t, "flow", "info", "reports", "daily")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Flow reports/daily (3 jobs)")
	assert.Contains(t, stdout, "  load [command]")

	code, stdout, stderr = runCapture(t, "flow", "run", "reports", "daily", "--job", "load", "--job", "report", "--block")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Submitted execution 1 of reports/daily")

	exec, ok := env.srv.Execution(1)
	require.True(t, ok)
	assert.Equal(t, []string{"extract"}, exec.Disabled)
	assert.Equal(t, "skip", exec.ConcurrentOption)

	code, stdout, stderr = runCapture(t, "history", "list", "--executions", "--json")
	require.Equal(t, 0, code, stderr)
	var listing historyListing
	require.NoError(t, json.Unmarshal([]byte(stdout), &listing))
	require.Len(t, listing.Executions, 1)
	assert.Equal(t, 1, listing.Executions[0].ExecID)
	assert.Equal(t, []string{"load", "report"}, listing.Executions[0].Jobs)
}

func TestFlowRunUnknownJobSubmitsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.srv.AddFlow("reports", "daily", "load")

	code, _, stderr := runCapture(t, "flow", "run", "reports", "daily", "--job", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "nope")
	_, ok := env.srv.Execution(1)
	assert.False(t, ok)
}

func TestFlowInfoUnknownFlow(t *testing.T) {
	env := newTestEnv(t)
	env.srv.AddProject("reports", "")

	code, _, stderr := runCapture(t, "flow", "info", "reports", "missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "missing")
}

func TestExecStatusLogsAndCancel(t *testing.T) {
	env := newTestEnv(t)
	id := env.srv.AddExecution(remotetest.Execution{
		Project: "reports",
		Flow:    "daily",
		Status:  "RUNNING",
		Nodes:   map[string]string{"load": "SUCCEEDED", "report": "RUNNING"},
		Logs:    map[string]string{"load": "line one\nline two\n"},
	})
	idArg := fmt.Sprint(id)

	code, stdout, stderr := runCapture(t, "exec", "status", idArg)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Execution "+idArg+" of reports/daily: RUNNING")
	assert.Contains(t, stdout, "RUNNING=1 SUCCEEDED=1")

	code, stdout, stderr = runCapture(t, "exec", "logs", idArg, "load", "--offset", "9")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "line two\n", stdout)

	code, stdout, stderr = runCapture(t, "exec", "cancel", idArg)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Cancelled execution "+idArg)

	code, _, stderr = runCapture(t, "exec", "cancel", idArg)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "isn't running")

	code, _, stderr = runCapture(t, "exec", "status", "abc")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "positive integer")
}

func TestRemoteCommandArgumentErrors(t *testing.T) {
	newTestEnv(t)

	code, _, stderr := runCapture(t, "exec", "status")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "expected")

	code, _, stderr = runCapture(t, "exec", "status", "-p", "nope", "1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `profile "nope" not found`)
}

func TestLoginFailureReported(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv(envPassword, "wrong")
	env.srv.AddFlow("reports", "daily", "load")

	code, _, stderr := runCapture(t, "flow", "info", "reports", "daily")
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr)
}

func TestConfigLockCheckGetSet(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, stderr := runCapture(t, "config", "check")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "no .checksums manifest")
	assert.Contains(t, stdout, "1 profile(s): dev")

	code, stdout, stderr = runCapture(t, "config", "lock")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Locked "+filepath.Join(env.configDir, ".checksums"))

	code, stdout, stderr = runCapture(t, "config", "check", "--strict")
	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, stdout, "WARN")

	code, stdout, stderr = runCapture(t, "config", "get", "defaults.profile")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "dev\n", stdout)

	code, _, stderr = runCapture(t, "config", "set", "profiles.dev.max_refresh_attempts=3")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--dry-run or --apply")

	code, stdout, stderr = runCapture(t, "config", "set", "profiles.dev.max_refresh_attempts=3", "--apply")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "azkit config lock")

	// The edit broke the lock until it is renewed.
	code, _, _ = runCapture(t, "config", "check")
	assert.Equal(t, 1, code)

	code, _, stderr = runCapture(t, "config", "lock")
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr = runCapture(t, "config", "get", "profiles.dev.max_refresh_attempts")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "3\n", stdout)
}

func TestSplitFlagsAndPositionals(t *testing.T) {
	flags, positionals := splitFlagsAndPositionals(
		[]string{"reports", "-p", "dev", "daily", "--job=a", "--block", "--job", "b"},
		map[string]bool{"p": true, "job": true},
	)
	assert.Equal(t, []string{"-p", "dev", "--job=a", "--block", "--job", "b"}, flags)
	assert.Equal(t, []string{"reports", "daily"}, positionals)
}

func TestStringList(t *testing.T) {
	var s stringList
	require.NoError(t, s.Set("a, b"))
	require.NoError(t, s.Set("c"))
	assert.Equal(t, stringList{"a", "b", "c"}, s)
	assert.Equal(t, "a,b,c", s.String())
}

func TestConfigSetRefusesWhileLocked(t *testing.T) {
	env := newTestEnv(t)
	held, err := lock.Acquire(env.configDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = held.Release() })

	code, _, stderr := runCapture(t, "config", "set", "log_level=debug", "--apply")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "being edited")

	code, stdout, _ := runCapture(t, "config", "get", "log_level")
	require.Equal(t, 0, code)
	assert.Equal(t, "error\n", stdout)
}

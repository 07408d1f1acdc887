package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dotphrase/internal/inject"
	"dotphrase/internal/keystroke"
)

// testEnv isolates every path the CLI touches and returns a config file.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(dir, "run"))
	for _, env := range []string{"DOTPHRASE_STORAGE_BACKEND", "DOTPHRASE_STORAGE_PATH", "DOTPHRASE_LOG_LEVEL"} {
		t.Setenv(env, "")
	}

	path := filepath.Join(dir, "config.toml")
	content := `version = 1

[storage]
path = "` + filepath.Join(dir, "phrases.db") + `"

[logging]
level = "error"

[notify]
enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, a *app, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	a.teardown()
	return out.String(), err
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	return execute(t, newApp(), "", append([]string{"--config", cfgPath}, args...)...)
}

func TestAddListDelete(t *testing.T) {
	cfg := testEnv(t)

	out, err := run(t, cfg, "add", ".hi", "Hello, world!")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved .hi")

	_, err = run(t, cfg, "add", ".sig", "Best,\nAda")
	require.NoError(t, err)

	out, err = run(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "DOT PHRASE")
	assert.Contains(t, out, ".hi")
	assert.Contains(t, out, "Hello, world!")
	assert.Contains(t, out, `Best,\nAda`)
	assert.Less(t, strings.Index(out, ".hi"), strings.Index(out, ".sig"))

	out, err = run(t, cfg, "delete", ".hi")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted .hi")

	out, err = run(t, cfg, "list")
	require.NoError(t, err)
	assert.NotContains(t, out, ".hi ")
}

func TestAddRejectsInvalidAndDuplicate(t *testing.T) {
	cfg := testEnv(t)

	_, err := run(t, cfg, "add", "hi", "x")
	assert.ErrorContains(t, err, "must start with '.'")

	_, err = run(t, cfg, "add", ".hi", "first")
	require.NoError(t, err)
	_, err = run(t, cfg, "add", ".hi", "second")
	assert.ErrorContains(t, err, "already exists")

	out, err := run(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "first")
	assert.NotContains(t, out, "second")
}

func TestDeleteMissing(t *testing.T) {
	cfg := testEnv(t)
	_, err := run(t, cfg, "delete", ".nope")
	assert.ErrorContains(t, err, "does not exist")
}

func TestListEmpty(t *testing.T) {
	cfg := testEnv(t)
	out, err := run(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No dot-phrases saved yet.")
}

func TestImportExport(t *testing.T) {
	cfg := testEnv(t)
	dir := t.TempDir()

	book := filepath.Join(dir, "book.yaml")
	require.NoError(t, os.WriteFile(book, []byte("phrases:\n  - trigger: .hi\n    expansion: Hello\n  - trigger: .bye\n    expansion: Goodbye\n"), 0600))

	_, err := run(t, cfg, "add", ".hi", "Hey")
	require.NoError(t, err)

	out, err := run(t, cfg, "import", book)
	require.NoError(t, err)
	assert.Contains(t, out, "1 added, 0 replaced, 1 skipped")

	out, err = run(t, cfg, "import", "--replace", book)
	require.NoError(t, err)
	assert.Contains(t, out, "0 added, 2 replaced, 0 skipped")

	exported := filepath.Join(dir, "out.json")
	out, err = run(t, cfg, "export", exported)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 dot-phrases")

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"trigger": ".bye"`)
}

func TestEncryptedStorage(t *testing.T) {
	cfg := testEnv(t)
	t.Setenv("DOTPHRASE_STORAGE_ENCRYPT", "true")

	const secret = "correct horse battery staple"
	_, err := run(t, cfg, "add", ".pw", secret)
	require.NoError(t, err)

	out, err := run(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, secret)

	files, err := filepath.Glob(filepath.Join(filepath.Dir(cfg), "phrases.db*"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		assert.NotContains(t, string(data), secret, f)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	cfg := testEnv(t)
	require.NoError(t, os.WriteFile(cfg, []byte("version = 1\n[storage]\nbackend = \"postgres\"\n"), 0600))

	_, err := run(t, cfg, "list")
	assert.ErrorContains(t, err, "storage.backend")
}

func TestConfigCommand(t *testing.T) {
	cfg := testEnv(t)
	t.Setenv("DOTPHRASE_REDIS_PASSWORD", "hunter2")

	out, err := run(t, cfg, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "[storage]")
	assert.Contains(t, out, `level = "error"`)
	assert.NotContains(t, out, "hunter2")

	out, err = run(t, cfg, "config", "--path")
	require.NoError(t, err)
	assert.Equal(t, cfg+"\n", out)
}

func TestConfigInit(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "fresh", "config.toml")

	out, err := run(t, path, "config", "--init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default configuration")

	out, err = run(t, path, "config", "--init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestDBCommands(t *testing.T) {
	cfg := testEnv(t)
	_, err := run(t, cfg, "add", ".hi", "Hello")
	require.NoError(t, err)

	out, err := run(t, cfg, "db", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version: 2 of 2")
	assert.NotContains(t, out, "pending")

	out, err = run(t, cfg, "db", "rollback")
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back 2")

	out, err = run(t, cfg, "db", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version: 1 of 2")
	assert.Contains(t, out, "pending")

	_, err = run(t, cfg, "db", "rollback")
	assert.ErrorContains(t, err, "cannot be rolled back")

	out, err = run(t, cfg, "db", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 2")

	out, err = run(t, cfg, "db", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date.")

	out, err = run(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello")
}

func TestDBCommandNeedsSQLite(t *testing.T) {
	cfg := testEnv(t)
	t.Setenv("DOTPHRASE_STORAGE_BACKEND", "memory")

	_, err := run(t, cfg, "db", "status")
	assert.ErrorContains(t, err, "sqlite backend only")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, newApp(), "", "version")
	require.NoError(t, err)
	assert.Equal(t, "dotphrase dev\n", out)
}

func TestParseAction(t *testing.T) {
	tests := map[string]menuAction{
		"1": actionStart, "2": actionCreate, "3": actionView, "4": actionDelete, "5": actionQuit,
		" view ": actionView, "q": actionQuit, "6": actionInvalid, "": actionInvalid, "start now": actionInvalid,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseAction(in), in)
	}
}

// fakeDevices swaps the OS keyboard for a simulated one and the virtual
// keyboard for an in-memory screen.
func fakeDevices(a *app) (*keystroke.Simulated, *inject.Screen) {
	sim := keystroke.NewSimulated()
	screen := inject.NewScreen()
	a.newSource = func(keystroke.Options) keystroke.Source { return sim }
	a.newInjector = func(inject.Options) (inject.Injector, error) { return screen, nil }
	return sim, screen
}

// waitListening blocks until the simulated source accepts events.
func waitListening(t *testing.T, sim *keystroke.Simulated) {
	t.Helper()
	idle := keystroke.EventForKind(keystroke.KindModifier, keystroke.SourceHardware).Released()
	require.Eventually(t, func() bool { return sim.Emit(idle) }, 5*time.Second, 10*time.Millisecond)
}

// typeOnScreen types text as the user: into the focused app and the key stream.
func typeOnScreen(sim *keystroke.Simulated, screen *inject.Screen, text string) {
	for _, r := range text {
		screen.Observe(keystroke.EventForRune(r, keystroke.SourceHardware))
		sim.Type(string(r))
	}
}

func TestStartExpandsUntilEscape(t *testing.T) {
	cfg := testEnv(t)
	_, err := run(t, cfg, "add", ".hi", "Hello, world!")
	require.NoError(t, err)

	a := newApp()
	sim, screen := fakeDevices(a)

	done := make(chan error, 1)
	var out bytes.Buffer
	go func() {
		root := newRootCmd(a)
		root.SetOut(&out)
		root.SetArgs([]string{"--config", cfg, "start"})
		done <- root.Execute()
	}()

	waitListening(t, sim)
	typeOnScreen(sim, screen, "hi .hi ")
	require.Eventually(t, func() bool { return screen.Text() == "hi Hello, world!" }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 4, screen.Backspaces())

	sim.Press(keystroke.KindEscape)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("start did not return after Escape")
	}
	assert.Contains(t, out.String(), "Press Esc to stop")
	assert.Contains(t, out.String(), "Stopped listening.")
}

func TestStartRefusesSecondSession(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("instance lock is advisory flock")
	}
	cfg := testEnv(t)

	a := newApp()
	sim, _ := fakeDevices(a)
	done := make(chan error, 1)
	go func() {
		root := newRootCmd(a)
		root.SetOut(&bytes.Buffer{})
		root.SetArgs([]string{"--config", cfg, "start"})
		done <- root.Execute()
	}()
	waitListening(t, sim)

	b := newApp()
	fakeDevices(b)
	_, err := execute(t, b, "", "--config", cfg, "start")
	assert.ErrorContains(t, err, "already listening")

	sim.Press(keystroke.KindEscape)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first session did not stop")
	}
}

func TestStartReportsMissingInjector(t *testing.T) {
	cfg := testEnv(t)
	a := newApp()
	fakeDevices(a)
	a.newInjector = func(inject.Options) (inject.Injector, error) { return nil, inject.ErrNotAvailable }

	_, err := execute(t, a, "", "--config", cfg, "start")
	assert.ErrorIs(t, err, inject.ErrNotAvailable)
}

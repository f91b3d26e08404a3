package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadedragon942/ddwiki/config"
	"github.com/jadedragon942/ddwiki/wiki"
)

// useDataDir points the config at a fresh directory for the test.
func useDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DDWIKI_DATA_DIR", dir)
	t.Setenv("DDWIKI_LOG_LEVEL", "error")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, sc := range cmd.Commands() {
		names[sc.Name()] = true
	}
	for _, want := range []string{"serve", "reindex", "search", "pages", "config"} {
		assert.True(t, names[want], "missing %s command", want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddwiki.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server.Addr, cfg.Server.Addr)

	_, err = execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)
}

func TestConfigShowAppliesEnv(t *testing.T) {
	dir := useDataDir(t)

	out, err := execute(t, "config", "show", "--json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestConfigEngines(t *testing.T) {
	out, err := execute(t, "config", "engines")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite\n")
	assert.Contains(t, out, "postgres\n")
}

func TestPagesListsHomePage(t *testing.T) {
	dir := useDataDir(t)

	out, err := execute(t, "pages")
	require.NoError(t, err)
	assert.Contains(t, out, "ADDRESS")
	assert.Contains(t, out, "home-page")

	_, err = os.Stat(filepath.Join(dir, "ddwiki.db"))
	assert.NoError(t, err)
}

func TestReindex(t *testing.T) {
	useDataDir(t)

	out, err := execute(t, "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 pages")
}

func TestSearchFindsSavedPage(t *testing.T) {
	useDataDir(t)
	ctx := context.Background()

	cfg, err := loadConfig("")
	require.NoError(t, err)
	a, err := openApp(ctx, cfg, nil)
	require.NoError(t, err)
	_, err = a.wiki.Save(ctx, wiki.SaveInput{Address: "projects/rockets", Body: "liquid fuel engines"})
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))

	out, err := execute(t, "search", "fuel")
	require.NoError(t, err)
	assert.Contains(t, out, "Projects/Rockets (projects/rockets)")

	out, err = execute(t, "search", "nothing-matches-this")
	require.NoError(t, err)
	assert.Contains(t, out, "No results")

	out, err = execute(t, "search", "--format", "json", "fuel")
	require.NoError(t, err)
	var hits []struct {
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "Projects/Rockets", hits[0].Title)

	_, err = execute(t, "search", "--format", "xml", "fuel")
	assert.Error(t, err)
}

func TestFilesystemBlobs(t *testing.T) {
	dir := useDataDir(t)
	t.Setenv("DDWIKI_BLOB_BACKEND", config.BlobFilesystem)
	ctx := context.Background()

	cfg, err := loadConfig("")
	require.NoError(t, err)
	a, err := openApp(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close(ctx)

	page, err := a.wiki.Save(ctx, wiki.SaveInput{
		Address: "files",
		Body:    "see attached",
		Upload:  &wiki.Upload{Filename: "a.txt", Data: []byte("payload")},
	})
	require.NoError(t, err)
	require.Len(t, page.Attachments, 1)

	b, err := a.wiki.GetFile(ctx, page.Attachments[0].FileID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "payload", string(b.Data))

	entries, err := os.ReadDir(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestUnknownEngine(t *testing.T) {
	useDataDir(t)
	t.Setenv("DDWIKI_STORAGE_ENGINE", "nosuchdb")

	_, err := execute(t, "pages")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage engine")
}

func TestServeRefusesLockedDataDir(t *testing.T) {
	dir := useDataDir(t)

	lock := flock.New(filepath.Join(dir, "ddwiki.lock"))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer lock.Unlock()

	err = runServe(context.Background(), "", "127.0.0.1:0", nil)
	assert.ErrorIs(t, err, errLocked)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	useDataDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, "", "127.0.0.1:0", ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

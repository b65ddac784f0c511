package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/errorstore"
	store "faultline-go/internal/storage"
)

type cliEnv struct {
	dir    string
	config string
	db     string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := cliEnv{
		dir:    dir,
		config: filepath.Join(dir, "faultline.yaml"),
		db:     filepath.Join(dir, "errors.db"),
	}
	yaml := "storage:\n  backend: file\n  base_dir: " + filepath.Join(dir, "state") + "\n" +
		"archive:\n  path: " + env.db + "\n  retention_days: 7\n" +
		"security:\n  management_key: super-secret-key\n"
	require.NoError(t, os.WriteFile(env.config, []byte(yaml), 0o600))
	return env
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e cliEnv) seed(t *testing.T, recs ...*apperrors.ErrorRecord) []errorstore.Entry {
	t.Helper()
	archive, err := errorstore.Open(context.Background(), errorstore.Options{Path: e.db, RetentionDays: 7})
	require.NoError(t, err)
	defer archive.Close()
	var out []errorstore.Entry
	for _, rec := range recs {
		entry, err := archive.Store(context.Background(), errorstore.Entry{
			Code:       rec.Code,
			Category:   rec.Category,
			Severity:   rec.Severity,
			HTTPStatus: rec.HTTPStatus,
			Message:    rec.Message,
		})
		require.NoError(t, err)
		out = append(out, entry)
	}
	return out
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"list", "show", "stats", "resolve", "unresolve", "delete", "cleanup", "export", "config", "state"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestListAndShow(t *testing.T) {
	env := newCLIEnv(t)
	entries := env.seed(t,
		apperrors.MapHTTPError(503, nil),
		apperrors.MapHTTPError(404, nil),
	)

	out, err := env.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, entries[0].ID)
	assert.Contains(t, out, apperrors.CodeNotFound)
	assert.Contains(t, out, "2 of 2 entries")

	out, err = env.run(t, "list", "--code", strings.ToLower(apperrors.CodeServiceUnavailable), "--json")
	require.NoError(t, err)
	assert.EqualValues(t, 1, gjson.Get(out, "total").Int())
	assert.Equal(t, entries[0].ID, gjson.Get(out, "entries.0.id").String())

	out, err = env.run(t, "show", entries[1].ID)
	require.NoError(t, err)
	assert.Equal(t, apperrors.CodeNotFound, gjson.Get(out, "code").String())

	_, err = env.run(t, "show", "missing")
	assert.ErrorContains(t, err, "no archived error with id missing")
}

func TestListRejectsBadFilters(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "list", "--severity", "urgent")
	assert.ErrorContains(t, err, "unknown severity")
}

func TestResolveLifecycleAndStats(t *testing.T) {
	env := newCLIEnv(t)
	entries := env.seed(t, apperrors.MapHTTPError(500, nil), apperrors.MapHTTPError(502, nil))

	out, err := env.run(t, "resolve", entries[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "resolved "+entries[0].ID)

	out, err = env.run(t, "list", "--unresolved", "--json")
	require.NoError(t, err)
	assert.EqualValues(t, 1, gjson.Get(out, "total").Int())

	out, err = env.run(t, "stats")
	require.NoError(t, err)
	assert.EqualValues(t, 2, gjson.Get(out, "fingerprints").Int())
	assert.EqualValues(t, 1, gjson.Get(out, "unresolved").Int())

	_, err = env.run(t, "unresolve", entries[0].ID)
	require.NoError(t, err)
	out, err = env.run(t, "delete", entries[1].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+entries[1].ID)

	out, err = env.run(t, "stats")
	require.NoError(t, err)
	assert.EqualValues(t, 1, gjson.Get(out, "fingerprints").Int())
	assert.EqualValues(t, 1, gjson.Get(out, "unresolved").Int())
}

func TestCleanupAndExport(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t, apperrors.MapHTTPError(500, nil))

	out, err := env.run(t, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 entries")

	target := filepath.Join(env.dir, "export.json")
	out, err = env.run(t, "export", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, "exported to "+target)
	doc, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.EqualValues(t, 1, gjson.GetBytes(doc, "count").Int())

	time.Sleep(5 * time.Millisecond)
	out, err = env.run(t, "cleanup", "--older-than", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 1 entries")
}

func TestConfigMasksSecrets(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "config", "--format", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "super-secret-key")
	assert.Equal(t, env.db, gjson.Get(out, "archive.path").String())
}

func TestStateDumpAndRestore(t *testing.T) {
	env := newCLIEnv(t)
	ctx := context.Background()
	backend := store.NewFileBackend(filepath.Join(env.dir, "state"))
	require.NoError(t, backend.Initialize(ctx))
	require.NoError(t, store.SetJSON(ctx, backend, "ui:theme", "dark"))
	require.NoError(t, store.SetJSON(ctx, backend, "ui:sidebar", map[string]any{"isOpen": false}))

	out, err := env.run(t, "state", "dump", "--prefix", "ui:")
	require.NoError(t, err)
	var dump stateDump
	require.NoError(t, json.Unmarshal([]byte(out), &dump))
	assert.Len(t, dump.Keys, 2)
	assert.JSONEq(t, `"dark"`, string(dump.Keys["ui:theme"]))

	require.NoError(t, backend.Delete(ctx, "ui:theme"))
	dumpFile := filepath.Join(env.dir, "state.json")
	require.NoError(t, os.WriteFile(dumpFile, []byte(out), 0o600))

	out, err = env.run(t, "state", "restore", "-i", dumpFile)
	require.NoError(t, err)
	assert.Contains(t, out, "restored 2 keys")

	reopened := store.NewFileBackend(filepath.Join(env.dir, "state"))
	require.NoError(t, reopened.Initialize(ctx))
	var theme string
	require.NoError(t, store.GetJSON(ctx, reopened, "ui:theme", &theme))
	assert.Equal(t, "dark", theme)
}

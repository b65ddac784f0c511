package storage

import (
	"context"
	"os"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.Health(ctx))

	_, err := b.Get(ctx, "ui:sidebar")
	require.True(t, IsNotFound(err))

	require.NoError(t, b.Set(ctx, "ui:sidebar", []byte(`{"isOpen":true}`)))
	require.NoError(t, b.Set(ctx, "ui:theme", []byte(`"dark"`)))
	require.NoError(t, b.Set(ctx, "auth:token", []byte(`"tok"`)))

	got, err := b.Get(ctx, "ui:sidebar")
	require.NoError(t, err)
	require.JSONEq(t, `{"isOpen":true}`, string(got))

	require.NoError(t, b.Set(ctx, "ui:theme", []byte(`"light"`)))
	got, err = b.Get(ctx, "ui:theme")
	require.NoError(t, err)
	require.Equal(t, `"light"`, string(got))

	keys, err := b.List(ctx, "ui:")
	require.NoError(t, err)
	require.Equal(t, []string{"ui:sidebar", "ui:theme"}, keys)

	require.NoError(t, b.Delete(ctx, "ui:theme"))
	require.True(t, IsNotFound(b.Delete(ctx, "ui:theme")))
	require.NoError(t, DeleteIfExists(ctx, b, "ui:theme"))

	var token string
	require.NoError(t, SetJSON(ctx, b, "auth:token", "abc"))
	require.NoError(t, GetJSON(ctx, b, "auth:token", &token))
	require.Equal(t, "abc", token)
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend())
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	fb := NewFileBackend(dir)
	require.NoError(t, fb.Initialize(context.Background()))
	exerciseBackend(t, fb)

	// a fresh backend on the same directory sees the persisted keys
	reopened := NewFileBackend(dir)
	require.NoError(t, reopened.Initialize(context.Background()))
	keys, err := reopened.List(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"auth:token", "ui:sidebar"}, keys)
}

func TestRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(mr.Close)

	rb, err := NewRedisBackend(mr.Addr(), "", 0, "test:")
	require.NoError(t, err)
	require.NoError(t, rb.Initialize(context.Background()))
	t.Cleanup(func() { _ = rb.Close() })

	exerciseBackend(t, rb)
	require.True(t, mr.Exists("test:ui:sidebar"))
}

func TestRedisBackendRequiresAddr(t *testing.T) {
	_, err := NewRedisBackend("", "", 0, "")
	require.Error(t, err)
}

func TestMongoDBBackendIntegration(t *testing.T) {
	uri := os.Getenv("FAULTLINE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("FAULTLINE_TEST_MONGO_URI not set")
	}
	mb, err := NewMongoDBBackend(uri, "faultline_test", "kv_test")
	require.NoError(t, err)
	require.NoError(t, mb.Initialize(context.Background()))
	t.Cleanup(func() {
		_ = mb.collection.Drop(context.Background())
		_ = mb.Close()
	})
	exerciseBackend(t, mb)
}

func TestInstrumentedBackendPassesThrough(t *testing.T) {
	mem := NewMemoryBackend()
	b := WithInstrumentation(mem, "memory")
	exerciseBackend(t, b)
	require.Same(t, mem, Unwrap(b))
	require.Equal(t, "memory", DetectBackendLabel("", b))
	require.Equal(t, "mongodb", DetectBackendLabel("mongo", b))
}

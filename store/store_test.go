package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/potok/core"
)

// exerciseStore 对任意 Store 实现做同样的读写检查。
func exerciseStore(t *testing.T, st core.Store, prefix string) {
	t.Helper()
	ctx := context.Background()
	key := func(parts ...string) string { return core.JoinKey(append([]string{prefix}, parts...)...) }

	_, err := st.Get(ctx, key("missing"))
	assert.True(t, core.IsStoreNotFound(err))

	require.NoError(t, st.Set(ctx, key("layer_0", "kfold_0", "state.json"), []byte(`{"k":5}`)))
	got, err := st.Get(ctx, key("layer_0", "kfold_0", "state.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"k":5}`, string(got))

	require.NoError(t, st.BatchSet(ctx, map[string][]byte{
		key("layer_1", "regressor.linear_0", "state.json"): []byte("a"),
		key("layer_1", "regressor.linear_1", "state.json"): []byte("b"),
		key("manifest.yaml"): []byte("name: demo"),
	}))

	keys, err := st.Keys(ctx, key("layer_1")+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		key("layer_1", "regressor.linear_0", "state.json"),
		key("layer_1", "regressor.linear_1", "state.json"),
	}, keys)

	vals, err := st.BatchGet(ctx, []string{key("manifest.yaml"), key("nope")})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{key("manifest.yaml"): []byte("name: demo")}, vals)

	require.NoError(t, st.Delete(ctx, key("manifest.yaml")))
	require.NoError(t, st.Delete(ctx, key("manifest.yaml")), "deleting twice is not an error")
	_, err = st.Get(ctx, key("manifest.yaml"))
	assert.True(t, core.IsStoreNotFound(err))
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()
	exerciseStore(t, st, "models/demo")

	// 写入后修改原切片不影响已存储的值
	ctx := context.Background()
	buf := []byte("v1")
	require.NoError(t, st.Set(ctx, "k", buf))
	buf[0] = 'x'
	got, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
}

func TestFileStore(t *testing.T) {
	root := t.TempDir()
	st, err := NewFileStore(root)
	require.NoError(t, err)
	exerciseStore(t, st, "models/demo")

	_, err = os.Stat(filepath.Join(root, "models", "demo", "layer_0", "kfold_0", "state.json"))
	assert.NoError(t, err, "keys map to a directory tree")
}

func TestFileStore_InvalidKeys(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, k := range []string{"", ".", "..", "../escape", "/etc/passwd", "a/../../b", ".potok-tmp/x"} {
		err := st.Set(ctx, k, []byte("x"))
		assert.True(t, core.IsInvalidInput(err), "key %q: %v", k, err)
	}
}

func TestFileStore_TmpSuffixKeys(t *testing.T) {
	root := t.TempDir()
	st, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "a/b.tmp", []byte("1")))
	require.NoError(t, st.Set(ctx, "a/c", []byte("2")))
	keys, err := st.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b.tmp", "a/c"}, keys)

	left, err := os.ReadDir(filepath.Join(root, ".potok-tmp"))
	require.NoError(t, err)
	assert.Empty(t, left, "no temp files after Set")
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `models/\[a\]\*\?`, escapeGlob("models/[a]*?"))
	assert.Equal(t, "plain/key", escapeGlob("plain/key"))
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("POTOK_REDIS_URL")
	if url == "" {
		t.Skip("POTOK_REDIS_URL not set")
	}
	st, err := NewRedisStoreFromURL(url)
	require.NoError(t, err)
	defer st.Close()
	st.Namespace = "potok-test"
	exerciseStore(t, st, t.Name())
}

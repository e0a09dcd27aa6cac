package exportcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stagingBuilder writes a fake export into a staging directory and counts
// invocations.
type stagingBuilder struct {
	t       *testing.T
	staging string
	calls   int
	content string
}

func (b *stagingBuilder) build(context.Context) (string, error) {
	b.calls++
	dir := filepath.Join(b.staging, "export")
	require.NoError(b.t, os.MkdirAll(filepath.Join(dir, "figs"), 0o750))
	require.NoError(b.t, os.WriteFile(filepath.Join(dir, "TEST-00-001_temp.tex"), []byte(b.content), 0o600))
	return dir, nil
}

func TestEnsureReusesHashEntry(t *testing.T) {
	ws := t.TempDir()
	c := New(ws, nil)
	b := &stagingBuilder{t: t, staging: t.TempDir(), content: "v1"}
	const hash = "0123456789abcdef0123456789abcdef01234567"

	p, hit, err := c.Ensure(context.Background(), hash, PolicyFor(hash), b.build)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, filepath.Join(ws, "export_"+hash), p)
	assert.FileExists(t, filepath.Join(p, "TEST-00-001_temp.tex"))
	assert.NoDirExists(t, filepath.Join(b.staging, "export"), "staging moved away")

	b.content = "v2"
	p2, hit, err := c.Ensure(context.Background(), hash, PolicyFor(hash), b.build)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, p, p2)
	assert.Equal(t, 1, b.calls, "second export of the same hash is a cache hit")

	data, err := os.ReadFile(filepath.Join(p, "TEST-00-001_temp.tex"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestEnsureCurrentAlwaysRebuilds(t *testing.T) {
	c := New(t.TempDir(), nil)
	b := &stagingBuilder{t: t, staging: t.TempDir(), content: "draft 1"}

	assert.Equal(t, PolicyRebuild, PolicyFor(CurrentKey))
	_, _, err := c.Ensure(context.Background(), CurrentKey, PolicyFor(CurrentKey), b.build)
	require.NoError(t, err)

	b.content = "draft 2"
	p, hit, err := c.Ensure(context.Background(), CurrentKey, PolicyFor(CurrentKey), b.build)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, b.calls)
	assert.Equal(t, "export_current", filepath.Base(p))

	data, err := os.ReadFile(filepath.Join(p, "TEST-00-001_temp.tex"))
	require.NoError(t, err)
	assert.Equal(t, "draft 2", string(data))
}

func TestEnsureBuildFailureLeavesNoEntry(t *testing.T) {
	c := New(t.TempDir(), nil)
	boom := errors.New("tdr failed")
	_, _, err := c.Ensure(context.Background(), "abc", PolicyReuse, func(context.Context) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)
	_, ok := c.Lookup("abc")
	assert.False(t, ok)
}

func TestIncompleteEntryIsRebuilt(t *testing.T) {
	c := New(t.TempDir(), nil)
	b := &stagingBuilder{t: t, staging: t.TempDir(), content: "partial"}
	const hash = "abc123"

	p, _, err := c.Ensure(context.Background(), hash, PolicyReuse, b.build)
	require.NoError(t, err)
	require.NoError(t, c.MarkIncomplete(hash))

	_, ok := c.Lookup(hash)
	assert.False(t, ok)

	b.content = "complete"
	p2, hit, err := c.Ensure(context.Background(), hash, PolicyReuse, b.build)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, p, p2)
	assert.Equal(t, 2, b.calls)
	assert.NoFileExists(t, filepath.Join(p2, IncompleteMarker))
}

func TestKeysAndInvalidate(t *testing.T) {
	ws := t.TempDir()
	c := New(ws, nil)
	for _, k := range []string{"bbb", "aaa", CurrentKey} {
		require.NoError(t, os.MkdirAll(c.Path(k), 0o750))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "TEST-00-001"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "export_file"), nil, 0o600))

	keys, err := c.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb", CurrentKey}, keys)

	require.NoError(t, c.Invalidate("aaa"))
	require.NoError(t, c.Invalidate("aaa"))
	keys, err = c.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"bbb", CurrentKey}, keys)

	keys, err = New(filepath.Join(ws, "absent"), nil).Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestInvalidKeys(t *testing.T) {
	c := New(t.TempDir(), nil)
	for _, k := range []string{"", ".", "..", "../x", `a\b`} {
		assert.ErrorIs(t, c.Invalidate(k), ErrInvalidKey, k)
		_, ok := c.Lookup(k)
		assert.False(t, ok)
	}
}

func TestStoreReplacesExisting(t *testing.T) {
	c := New(t.TempDir(), nil)
	require.NoError(t, os.MkdirAll(c.Path("abc"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(c.Path("abc"), "stale.tex"), nil, 0o600))

	staged := filepath.Join(t.TempDir(), "export")
	require.NoError(t, os.MkdirAll(staged, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(staged, "fresh.tex"), nil, 0o600))

	p, err := c.Store("abc", staged)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(p, "fresh.tex"))
	assert.NoFileExists(t, filepath.Join(p, "stale.tex"))

	_, err = c.Store("abc", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestIsCrossDevice(t *testing.T) {
	assert.True(t, isCrossDevice(&os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EXDEV}))
	assert.False(t, isCrossDevice(&os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EACCES}))
	assert.False(t, isCrossDevice(errors.New("rename failed")))
}

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "figs", "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "figs", "sub", "plot.pdf"), []byte("%PDF"), 0o640))
	require.NoError(t, os.Symlink("figs/sub/plot.pdf", filepath.Join(src, "link.pdf")))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyDir(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "figs", "sub", "plot.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	target, err := os.Readlink(filepath.Join(dst, "link.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "figs/sub/plot.pdf", target)
	st, err := os.Stat(filepath.Join(dst, "figs", "sub", "plot.pdf"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), st.Mode().Perm())
}

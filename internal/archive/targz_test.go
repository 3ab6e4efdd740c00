package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackExtractRoundTrip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "model-abc")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "weights.bin"), []byte("w"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "vocab.txt"), []byte("hello"), 0o644))

	out := filepath.Join(t.TempDir(), "abc.tar.gz")
	require.NoError(t, Pack(src, out, "model-abc"))

	top, err := TopLevelDir(out)
	require.NoError(t, err)
	assert.Equal(t, "model-abc", top)

	dest := t.TempDir()
	require.NoError(t, Extract(out, dest))
	raw, err := os.ReadFile(filepath.Join(dest, "model-abc", "sub", "vocab.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(raw))
}

func TestExtractRejectsTraversal(t *testing.T) {
	out := filepath.Join(t.TempDir(), "evil.tar.gz")
	f, err := os.Create(out)
	require.NoError(t, err)
	gzw := gzip.NewWriter(f)
	tw := tar.NewWriter(gzw)
	body := []byte("x")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape.txt", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	require.NoError(t, f.Close())

	dest := t.TempDir()
	err = Extract(out, dest)
	assert.True(t, errors.Is(err, ErrInvalidArchive), "got %v", err)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCorruptArchive(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bad.tar.gz")
	require.NoError(t, os.WriteFile(out, []byte("not gzip"), 0o644))
	_, err := TopLevelDir(out)
	assert.True(t, errors.Is(err, ErrInvalidArchive), "got %v", err)
	assert.True(t, errors.Is(Extract(out, t.TempDir()), ErrInvalidArchive))
}

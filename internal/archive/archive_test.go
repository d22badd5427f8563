package archive

import (
	"archive/tar"
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antti/imagevault/internal/shared"
)

func writeZip(t *testing.T, dir string, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, "sample.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.Create("photos/") // directory entry, should be skipped on read
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func writeTar(t *testing.T, dir string, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, "sample.tar")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	tw := tar.NewWriter(f)
	for name, data := range files {
		hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0644, Typeflag: tar.TypeReg}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err = tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return path
}

func TestOpenZip_EntriesSkipDirectories(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, map[string][]byte{
		"photos/a.jpg": []byte("image-a"),
		"photos/b.jpg": []byte("image-bb"),
	})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	for _, e := range entries {
		rs, err := e.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rs)
		require.NoError(t, err)
		assert.Equal(t, int(e.Size), len(data))
	}
}

func TestOpenTar_ReadsEntryContents(t *testing.T) {
	dir := t.TempDir()
	path := writeTar(t, dir, map[string][]byte{
		"a.png": []byte("png-bytes"),
	})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	rs, err := entries[0].Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestOpen_CorruptZipReturnsCorruptAssetError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0644))

	_, err := Open(path)
	require.Error(t, err)
	assert.True(t, shared.IsCorruptAsset(err))
}

func TestOpen_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := Open(path)
	require.Error(t, err)
}

func TestExt(t *testing.T) {
	assert.True(t, Ext(".zip"))
	assert.True(t, Ext(".7Z"))
	assert.True(t, Ext(".tar.gz"))
	assert.False(t, Ext(".txt"))
}

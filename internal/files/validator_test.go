package files

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFiles(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.txt")
	empty := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	infos, err := ValidateFiles([]string{text, empty})
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, "notes.txt", infos[0].Name)
	assert.Equal(t, int64(5), infos[0].Size)
	assert.Contains(t, infos[0].Type, "text/plain")
	assert.Equal(t, int64(0), infos[1].Size)
	assert.Equal(t, int64(5), TotalSize(infos))
}

func TestValidateFilesReportsAllProblems(t *testing.T) {
	dir := t.TempDir()

	_, err := ValidateFiles([]string{filepath.Join(dir, "missing-a"), dir, filepath.Join(dir, "missing-b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing-a: file does not exist")
	assert.Contains(t, err.Error(), "is a directory")
	assert.Contains(t, err.Error(), "missing-b: file does not exist")

	_, err = ValidateFiles(nil)
	assert.Error(t, err)
}

func TestDetectType(t *testing.T) {
	assert.Equal(t, DefaultMIMEType, DetectType("archive.unknownext"))
	assert.Equal(t, "image/png", DetectType("photo.png"))
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0644))

	info, err := Inspect(path)
	require.NoError(t, err)

	src, f, err := Open(info)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(src.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, "data.bin", src.Name)
	assert.Equal(t, int64(7), src.Size)
}

// Package files checks local paths before they are offered to a peer.
package files

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/peerdrop/peerdrop/internal/transfer"
)

const DefaultMIMEType = "application/octet-stream"

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	Size int64

	// Type is the MIME type guessed from the extension
	Type string
}

// ValidateFiles checks that every path is a readable regular file. All
// failures are reported together.
func ValidateFiles(paths []string) ([]FileInfo, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files specified")
	}

	var infos []FileInfo
	var problems []string

	for _, path := range paths {
		info, err := Inspect(path)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		infos = append(infos, info)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("file validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return infos, nil
}

// Inspect validates a single path. Empty files are accepted.
func Inspect(path string) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: DetectType(absPath),
	}, nil
}

// DetectType guesses a MIME type from the file extension.
func DetectType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return DefaultMIMEType
}

// Open returns a transfer source reading the file. The caller closes the
// returned file once the transfer finished.
func Open(info FileInfo) (transfer.Source, *os.File, error) {
	f, err := os.Open(info.Path)
	if err != nil {
		return transfer.Source{}, nil, transfer.NewFileError("open", info.Name, err)
	}
	return transfer.Source{
		Name: info.Name,
		Size: info.Size,
		Type: info.Type,
		Body: f,
	}, f, nil
}

// TotalSize sums the sizes of infos.
func TotalSize(infos []FileInfo) int64 {
	var total int64
	for _, info := range infos {
		total += info.Size
	}
	return total
}

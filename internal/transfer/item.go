package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ItemStatus is the lifecycle state of one file transfer.
type ItemStatus string

const (
	StatusPending      ItemStatus = "pending"
	StatusTransferring ItemStatus = "transferring"
	StatusCompleted    ItemStatus = "completed"
	StatusError        ItemStatus = "error"
)

// Item describes a file transfer for observers.
type Item struct {
	ID        string
	Name      string
	Size      int64
	Type      string
	Progress  int
	Status    ItemStatus
	Timestamp time.Time
}

// Handle is a fully received file. The bytes are kept in memory until the
// handle is dropped.
type Handle struct {
	ID   string
	Name string
	Type string
	data []byte
}

// Size returns the number of bytes received.
func (h *Handle) Size() int64 {
	return int64(len(h.data))
}

// Bytes returns the reassembled content. Callers must not modify it.
func (h *Handle) Bytes() []byte {
	return h.data
}

// SaveTo writes the content into dir under the transferred name, adding
// " (n)" before the extension when the name is taken. It returns the path
// written.
func (h *Handle) SaveTo(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", NewFileError("create directory", dir, err)
	}

	path := uniquePath(dir, safeName(h.Name))
	if err := os.WriteFile(path, h.data, 0644); err != nil {
		return "", NewFileError("write", path, err)
	}
	return path, nil
}

// safeName strips directories so a peer cannot write outside dir.
func safeName(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return "download"
	}
	return base
}

func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	for counter := 1; ; counter++ {
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, counter, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}

// Percent returns floor(min(100, done*100/total)). An empty file is always
// complete.
func Percent(done, total int64) int {
	if total <= 0 || done >= total {
		return 100
	}
	if done <= 0 {
		return 0
	}
	return int(done * 100 / total)
}

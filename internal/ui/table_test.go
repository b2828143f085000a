package ui

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileTableView(t *testing.T) {
	out := FileTableView([]FileTableItem{
		{Index: 1, Name: "report.pdf", Size: 2048, Type: "application/pdf"},
		{Index: 2, Name: "empty.txt", Size: 0, Type: "text/plain"},
	})
	assert.Contains(t, out, "report.pdf")
	assert.Contains(t, out, "2.00 KB")
	assert.Contains(t, out, "empty.txt")

	assert.Contains(t, FileTableView(nil), "No files")
}

func TestTransferSummaryView(t *testing.T) {
	out := TransferSummaryView("Transfer Summary", TransferSummary{
		Status:    "Complete",
		Files:     2,
		TotalSize: 150000,
		Duration:  "1.50 seconds",
		Speed:     "0.10 MiB/s",
		Saved:     []string{"./a.txt", "./b.txt"},
	})
	assert.Contains(t, out, "Complete")
	assert.Contains(t, out, "146.48 KB")
	assert.Contains(t, out, "./b.txt")
	assert.NotContains(t, out, "Failed")
}

func TestCodeBoxView(t *testing.T) {
	out := CodeBoxView("483920", "ws://localhost:8080/ws")
	assert.Contains(t, out, "483920")
	assert.Contains(t, out, "peerdrop receive 483920")
}

func TestErrorBoxView(t *testing.T) {
	out := ErrorBoxView(errors.New("connect: session failed"), "Run with LOG_LEVEL=debug for details.")
	assert.Contains(t, out, "connect: session failed")
	assert.Contains(t, out, "LOG_LEVEL=debug")
	assert.Contains(t, ErrorBoxView(errors.New("boom"), ""), "boom")
}

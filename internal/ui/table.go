package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/text"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// FileTableItem is one row of the file list shown before sending.
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
}

// FileTableView renders the files about to be offered.
func FileTableView(items []FileTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No files")
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.Index),
			TruncateString(item.Name, 50),
			FormatSize(item.Size),
			TruncateString(item.Type, 24),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Name", "Size", "Type").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// TransferSummary is printed once a run ends.
type TransferSummary struct {
	Status    string
	Files     int
	Failed    int
	TotalSize int64
	Duration  string
	Speed     string
	Saved     []string
}

// TransferSummaryView renders the summary as a go-pretty table.
func TransferSummaryView(title string, s TransferSummary) string {
	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.SetTitle(title)

	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRow(prettytable.Row{"Status", s.Status})
	t.AppendRow(prettytable.Row{"Files", s.Files})
	if s.Failed > 0 {
		t.AppendRow(prettytable.Row{"Failed", s.Failed})
	}
	t.AppendRow(prettytable.Row{"Total Size", FormatSize(s.TotalSize)})
	t.AppendRow(prettytable.Row{"Duration", s.Duration})
	t.AppendRow(prettytable.Row{"Avg Speed", s.Speed})
	for i, path := range s.Saved {
		label := ""
		if i == 0 {
			label = "Saved"
		}
		t.AppendRow(prettytable.Row{label, path})
	}

	return t.Render()
}

func RenderTransferSummary(title string, s TransferSummary) {
	fmt.Println(TransferSummaryView(title, s))
}

// CodeBoxView shows the room code the sender must share.
func CodeBoxView(code, server string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Code:    %s\n%s Server:  %s\n\n%s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(code),
		IconServer, MutedStyle.Render(server),
		MutedStyle.Render("Run: peerdrop receive "+code),
	)
	return CodeBoxStyle.Render(content)
}

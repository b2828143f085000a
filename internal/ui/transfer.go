package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/peerdrop/peerdrop/internal/session"
	"github.com/peerdrop/peerdrop/internal/transfer"
)

// TransferMode represents send or receive
type TransferMode int

const (
	ModeSend TransferMode = iota
	ModeReceive
)

const maxLogLines = 5

type (
	statusMsg    session.Status
	itemAddedMsg transfer.Item
	progressMsg  struct {
		id      string
		percent int
	}
	completedMsg string
	failedMsg    struct {
		id  string
		err string
	}
	logMsg string
)

type viewItem struct {
	item    transfer.Item
	bar     progress.Model
	started time.Time
	err     string
}

type transferModel struct {
	mode     TransferMode
	status   session.Status
	order    []string
	items    map[string]*viewItem
	logs     []string
	spinner  spinner.Model
	quitting bool
	onCancel func()
}

func newTransferModel(mode TransferMode, onCancel func()) *transferModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &transferModel{
		mode:     mode,
		status:   session.StatusIdle,
		items:    make(map[string]*viewItem),
		spinner:  s,
		onCancel: onCancel,
	}
}

func (m *transferModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onCancel != nil {
				m.onCancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		for _, v := range m.items {
			v.bar.Width = max(10, min(30, msg.Width-60))
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		m.status = session.Status(msg)

	case itemAddedMsg:
		item := transfer.Item(msg)
		if _, exists := m.items[item.ID]; !exists {
			m.order = append(m.order, item.ID)
		}
		m.items[item.ID] = &viewItem{
			item: item,
			bar: progress.New(
				progress.WithGradient(ProgressStart, ProgressEnd),
				progress.WithWidth(25),
				progress.WithoutPercentage(),
			),
		}

	case progressMsg:
		if v, ok := m.items[msg.id]; ok {
			if v.started.IsZero() {
				v.started = time.Now()
			}
			v.item.Progress = msg.percent
			if v.item.Status == transfer.StatusPending {
				v.item.Status = transfer.StatusTransferring
			}
			if msg.percent >= 100 && m.mode == ModeSend {
				v.item.Status = transfer.StatusCompleted
			}
		}

	case completedMsg:
		if v, ok := m.items[string(msg)]; ok {
			v.item.Progress = 100
			v.item.Status = transfer.StatusCompleted
		}

	case failedMsg:
		if v, ok := m.items[msg.id]; ok {
			v.item.Status = transfer.StatusError
			v.err = msg.err
		}

	case logMsg:
		m.logs = append(m.logs, string(msg))
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
	}

	return m, nil
}

func (m *transferModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	modeIcon, modeText := IconSend, "Sending"
	if m.mode == ModeReceive {
		modeIcon, modeText = IconReceive, "Receiving"
	}
	b.WriteString("\n" + TitleStyle.Render(fmt.Sprintf("%s %s Files", modeIcon, modeText)) + "\n")
	b.WriteString(fmt.Sprintf("%s %s\n\n", m.spinner.View(), StatusStyle.Render(string(m.status))))

	for _, id := range m.order {
		v := m.items[id]

		var icon string
		var nameStyle lipgloss.Style
		switch v.item.Status {
		case transfer.StatusError:
			icon, nameStyle = IconError, ErrorStyle
		case transfer.StatusCompleted:
			icon, nameStyle = IconSuccess, SuccessStyle
		case transfer.StatusTransferring:
			icon, nameStyle = m.spinner.View(), lipgloss.NewStyle()
		default:
			icon, nameStyle = "○", MutedStyle
		}

		name := TruncateString(v.item.Name, 22)
		b.WriteString(fmt.Sprintf("  %s %s ", icon, nameStyle.Width(24).Render(name)))
		b.WriteString(v.bar.ViewAs(float64(v.item.Progress) / 100))
		b.WriteString(fmt.Sprintf(" %3d%%", v.item.Progress))
		b.WriteString(MutedStyle.Render(" " + FormatSize(v.item.Size)))

		if v.item.Status == transfer.StatusTransferring && !v.started.IsZero() {
			done := v.item.Size * int64(v.item.Progress) / 100
			if elapsed := time.Since(v.started).Seconds(); elapsed > 0 && done > 0 {
				b.WriteString(MutedStyle.Render(" " + FormatSpeed(float64(done)/elapsed)))
			}
		}
		if v.err != "" {
			b.WriteString(" " + ErrorStyle.Render(v.err))
		}
		b.WriteString("\n")
	}

	if len(m.logs) > 0 {
		b.WriteString("\n")
		for _, l := range m.logs {
			b.WriteString(MutedStyle.Render("  "+l) + "\n")
		}
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to cancel"))
	return b.String()
}

// TransferView is a live bubbletea view that implements session.Observer.
type TransferView struct {
	program *tea.Program
	model   *transferModel
	wg      sync.WaitGroup
	once    sync.Once
}

// NewTransferView builds a view; onCancel runs when the user presses q.
func NewTransferView(mode TransferMode, onCancel func(), opts ...tea.ProgramOption) *TransferView {
	model := newTransferModel(mode, onCancel)
	return &TransferView{
		model:   model,
		program: tea.NewProgram(model, opts...),
	}
}

// Start runs the program in the background. Inline mode keeps earlier
// terminal output visible.
func (v *TransferView) Start() {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if _, err := v.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Stop quits the program and waits for it to restore the terminal.
func (v *TransferView) Stop() {
	v.once.Do(func() {
		v.program.Quit()
		v.wg.Wait()
	})
}

func (v *TransferView) MarkFailed(id string, err error) {
	v.program.Send(failedMsg{id: id, err: err.Error()})
}

func (v *TransferView) OnStatusChange(s session.Status) { v.program.Send(statusMsg(s)) }

func (v *TransferView) OnTransferAdded(item transfer.Item) { v.program.Send(itemAddedMsg(item)) }

func (v *TransferView) OnProgress(id string, percent int) {
	v.program.Send(progressMsg{id: id, percent: percent})
}

func (v *TransferView) OnCompleted(id string, _ *transfer.Handle) { v.program.Send(completedMsg(id)) }

func (v *TransferView) OnLog(message string) { v.program.Send(logMsg(message)) }

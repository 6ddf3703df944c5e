package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// Task does the work behind a progress bar and reports bytes as they arrive.
type Task func(ctx context.Context, report func(written, total int64)) error

type progressMsg struct{ written, total int64 }

type doneMsg struct{ err error }

type progressModel struct {
	label   string
	bar     progress.Model
	written int64
	total   int64
	cancel  context.CancelFunc
}

func (m progressModel) Init() tea.Cmd { return nil }

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Wait for the task to unwind; it reports through doneMsg.
		if msg.String() == "ctrl+c" {
			m.cancel()
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-24, 10), 60)
	case progressMsg:
		m.written, m.total = msg.written, msg.total
	case doneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	size := FormatBytes(m.written)
	if m.total > 0 {
		size += " / " + FormatBytes(m.total)
	}
	return m.label + "\n" + m.bar.ViewAs(m.ratio()) + "  " + mutedStyle.Render(size) + "\n"
}

func (m progressModel) ratio() float64 {
	if m.total <= 0 {
		return 0
	}
	return min(float64(m.written)/float64(m.total), 1)
}

// RunWithProgress runs task while drawing a progress bar on out. Ctrl+C
// cancels the task's context. The task's error is returned.
func RunWithProgress(ctx context.Context, out io.Writer, label string, task Task) error {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []tea.ProgramOption{tea.WithOutput(out), tea.WithContext(ctx)}
	if !IsTerminal(os.Stdin) {
		opts = append(opts, tea.WithInput(nil))
	}
	p := tea.NewProgram(progressModel{
		label:  label,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		total:  -1,
		cancel: cancel,
	}, opts...)

	errc := make(chan error, 1)
	go func() {
		var last time.Time
		err := task(taskCtx, func(written, total int64) {
			if now := time.Now(); now.Sub(last) >= 50*time.Millisecond || written == total {
				last = now
				p.Send(progressMsg{written: written, total: total})
			}
		})
		errc <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
	}
	return <-errc
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

type eventMsg domain.TaskEvent

type streamClosedMsg struct{}

// ProgressModel renders the live state of one tracked ingestion task. It
// quits on the first terminal event or when the event stream closes.
type ProgressModel struct {
	taskID  string
	label   string
	events  <-chan domain.TaskEvent
	cancel  func()
	spinner spinner.Model
	bar     progress.Model

	last        domain.TaskEvent
	seen        bool
	done        bool
	interrupted bool
}

func NewProgressModel(taskID, label string, events <-chan domain.TaskEvent, cancel func()) ProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return ProgressModel{
		taskID:  taskID,
		label:   label,
		events:  events,
		cancel:  cancel,
		spinner: sp,
		bar:     bar,
		last: domain.TaskEvent{
			TaskID: taskID,
			State:  domain.PollerPolling,
			Task:   domain.IngestionTask{TaskID: taskID, Status: domain.TaskPending},
		},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			m.interrupted = !m.done
			m.done = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		width := msg.Width - 4
		if width > 60 {
			width = 60
		}
		if width < 10 {
			width = 10
		}
		m.bar.Width = width
		return m, nil
	case eventMsg:
		m.last = domain.TaskEvent(msg)
		m.seen = true
		if m.last.State.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	case streamClosedMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Ingesting " + m.label))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("task " + m.taskID))
	b.WriteString("\n\n")

	indicator := m.spinner.View()
	if m.done {
		indicator = stateStyle(m.last.State).Render("●")
	}
	fmt.Fprintf(&b, "%s %s  %s\n", indicator, stateStyle(m.last.State).Render(string(m.last.State)), m.last.Task.Status)

	b.WriteString(m.bar.ViewAs(Percent(m.last.Task)))
	b.WriteString("\n")
	if p := m.last.Task.Progress; p != nil && p.Stage != "" {
		b.WriteString(mutedStyle.Render("stage: " + p.Stage))
		b.WriteString("\n")
	}

	switch {
	case m.last.Task.Result != nil:
		fmt.Fprintf(&b, "\n%s document %s, %d chunks\n",
			okStyle.Render("done:"), m.last.Task.Result.DocumentID, m.last.Task.Result.ChunksProcessed)
	case m.last.Task.ErrorMessage != "":
		fmt.Fprintf(&b, "\n%s %s\n", errStyle.Render("failed:"), m.last.Task.ErrorMessage)
	case m.last.Error != "":
		fmt.Fprintf(&b, "\n%s %s\n", errStyle.Render("error:"), m.last.Error)
	case m.interrupted:
		b.WriteString("\n" + mutedStyle.Render("stopped watching; the backend job keeps running") + "\n")
	}

	if !m.done {
		b.WriteString("\n" + mutedStyle.Render("q to stop watching"))
	}
	return b.String()
}

// Last is the most recent event the model rendered.
func (m ProgressModel) Last() (domain.TaskEvent, bool) {
	return m.last, m.seen
}

func (m ProgressModel) Interrupted() bool {
	return m.interrupted
}

// Percent maps a snapshot to a 0..1 bar fill.
func Percent(task domain.IngestionTask) float64 {
	switch {
	case task.Status == domain.TaskSuccess:
		return 1
	case task.Progress != nil:
		return float64(task.Progress.Percent) / 100
	default:
		return 0
	}
}

func waitForEvent(events <-chan domain.TaskEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(event)
	}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

func stateStyle(state domain.PollerState) lipgloss.Style {
	switch state {
	case domain.PollerSucceeded:
		return okStyle
	case domain.PollerFailed, domain.PollerErrored:
		return errStyle
	case domain.PollerCancelled, domain.PollerTimedOut:
		return warnStyle
	default:
		return infoStyle
	}
}

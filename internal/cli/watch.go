package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lukaswerner/starmirror/internal/broadcast"
	"github.com/lukaswerner/starmirror/internal/client"
	"github.com/lukaswerner/starmirror/internal/models"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow sync and enrichment progress live",
	Long: `Subscribe to the server's event stream and render job progress as it
happens. Exits when the running jobs complete, or on Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchJobs(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// Theme holds the color scheme for the watch display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// watchJobs follows the event stream until all observed jobs go idle. On a
// real terminal it renders an interactive progress display; otherwise it
// prints plain status lines.
func watchJobs(ctx context.Context) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return watchPlain(ctx)
	}
	return watchInteractive(ctx)
}

// jobProgress is the decoded payload of a progress event.
type jobProgress struct {
	Job   string `json:"job"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// eventMsg carries one stream event into the bubbletea loop.
type eventMsg client.Event

// streamDoneMsg signals that the stream ended.
type streamDoneMsg struct{ err error }

// watchModel is the bubbletea model for live job progress.
type watchModel struct {
	events   <-chan client.Event
	errs     <-chan error
	cancel   context.CancelFunc
	progress progress.Model
	theme    Theme

	syncStatus   *models.RunStatus
	readmeStatus *models.RunStatus
	jobProgress  map[string]jobProgress
	sawRunning   bool
	quitting     bool
	err          error
}

func newWatchModel(events <-chan client.Event, errs <-chan error, cancel context.CancelFunc) watchModel {
	return watchModel{
		events:      events,
		errs:        errs,
		cancel:      cancel,
		progress:    progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		theme:       defaultTheme,
		jobProgress: make(map[string]jobProgress),
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.nextEvent(), m.progress.Init())
}

// nextEvent waits for the next stream event.
func (m watchModel) nextEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev, ok := <-m.events:
			if !ok {
				return streamDoneMsg{}
			}
			return eventMsg(ev)
		case err := <-m.errs:
			return streamDoneMsg{err: err}
		}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case eventMsg:
		m.apply(client.Event(msg))
		if m.allIdle() {
			m.cancel()
			return m, tea.Quit
		}
		return m, m.nextEvent()

	case streamDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.err = msg.err
		}
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// apply folds one event into the model state.
func (m *watchModel) apply(ev client.Event) {
	switch ev.Type {
	case broadcast.EventSyncStatus:
		var status models.RunStatus
		if ev.Decode(&status) == nil {
			m.syncStatus = &status
			if status.Running {
				m.sawRunning = true
			}
		}
	case broadcast.EventReadmeStatus:
		var status models.RunStatus
		if ev.Decode(&status) == nil {
			m.readmeStatus = &status
			if status.Running {
				m.sawRunning = true
			}
		}
	case broadcast.EventSyncProgress:
		var p jobProgress
		if ev.Decode(&p) == nil {
			m.jobProgress[p.Job] = p
		}
	}
}

// allIdle reports whether every job is idle after at least one was seen
// running. Until then there is nothing to wait out.
func (m watchModel) allIdle() bool {
	if !m.sawRunning {
		return false
	}
	if m.syncStatus != nil && m.syncStatus.Running {
		return false
	}
	if m.readmeStatus != nil && m.readmeStatus.Running {
		return false
	}
	return true
}

func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ Stream failed: %s\n", m.err))
	}

	var out string
	out += m.renderJob("Sync", m.syncStatus, m.jobProgress["sync"])
	out += m.renderJob("Enrichment", m.readmeStatus, m.jobProgress["readme"])

	if m.quitting {
		out += m.theme.hintStyle().Render("Detached. Jobs continue on the server.") + "\n"
	} else if m.allIdle() {
		out += m.theme.completedStyle().Render("✓ All jobs idle") + "\n"
	} else {
		out += m.theme.hintStyle().Render("Press Ctrl+C to detach") + "\n"
	}
	return out
}

func (m watchModel) renderJob(name string, status *models.RunStatus, prog jobProgress) string {
	if status == nil {
		return ""
	}

	label := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", name))
	if !status.Running {
		return fmt.Sprintf("%s %s\n", label, status.Message)
	}

	if prog.Total > 0 {
		pct := float64(prog.Done) / float64(prog.Total)
		return fmt.Sprintf("%s %s %d/%d\n", label, m.progress.ViewAs(pct), prog.Done, prog.Total)
	}
	return fmt.Sprintf("%s %s\n", label, status.Message)
}

func watchInteractive(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan client.Event, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		err := apiClient.StreamEvents(streamCtx, func(ev client.Event) error {
			events <- ev
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	model := newWatchModel(events, errs, cancel)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("watch UI error: %w", err)
	}
	if m, ok := finalModel.(watchModel); ok && m.err != nil {
		return m.err
	}
	return nil
}

// watchPlain streams events as plain lines for non-terminal output.
func watchPlain(ctx context.Context) error {
	state := watchModel{jobProgress: make(map[string]jobProgress)}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := apiClient.StreamEvents(streamCtx, func(ev client.Event) error {
		state.apply(ev)

		switch ev.Type {
		case broadcast.EventSyncStatus, broadcast.EventReadmeStatus:
			var status models.RunStatus
			if ev.Decode(&status) == nil {
				fmt.Printf("%s: running=%v %s\n", ev.Type, status.Running, status.Message)
			}
		case broadcast.EventSyncProgress:
			var p jobProgress
			if ev.Decode(&p) == nil {
				fmt.Printf("%s: %d/%d\n", p.Job, p.Done, p.Total)
			}
		}

		if state.allIdle() {
			return errAllIdle
		}
		return nil
	})
	if errors.Is(err, errAllIdle) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var errAllIdle = errors.New("all jobs idle")

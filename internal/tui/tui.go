// Package tui renders the recorder screen in the terminal.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/audiolibrelab/voicememo/internal/screen"
)

// Controller is the part of the recorder screen the terminal UI drives.
type Controller interface {
	RefreshClipList(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	PlayAudio(ctx context.Context, path string) error
	StopAudio(ctx context.Context) error
	Subscribe() (<-chan screen.View, func())
}

type viewMsg screen.View

type viewsClosedMsg struct{}

type opDoneMsg struct {
	op  string
	err error
}

// Model is the bubbletea model for the recorder screen.
type Model struct {
	ctx     context.Context
	control Controller
	views   <-chan screen.View
	cancel  func()

	view         screen.View
	selected     int
	notification string
	help         help.Model
	width        int
}

// New subscribes to ctl and returns the initial model.
func New(ctx context.Context, ctl Controller) Model {
	views, cancel := ctl.Subscribe()
	return Model{
		ctx:     ctx,
		control: ctl,
		views:   views,
		cancel:  cancel,
		help:    help.New(),
	}
}

// Run starts the interactive UI and blocks until the user quits.
func Run(ctx context.Context, ctl Controller) error {
	m := New(ctx, ctl)
	defer m.cancel()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func waitForView(views <-chan screen.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-views
		if !ok {
			return viewsClosedMsg{}
		}
		return viewMsg(v)
	}
}

func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) Init() tea.Cmd {
	return waitForView(m.views)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case viewMsg:
		m.view = screen.View(msg)
		if m.selected >= len(m.view.Clips) {
			m.selected = max(len(m.view.Clips)-1, 0)
		}
		return m, waitForView(m.views)

	case viewsClosedMsg:
		return m, tea.Quit

	case opDoneMsg:
		if msg.err != nil {
			m.notification = fmt.Sprintf("%s: %v", msg.op, msg.err)
		} else {
			m.notification = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, keys.Up):
		if m.selected > 0 {
			m.selected--
		}

	case key.Matches(msg, keys.Down):
		if m.selected < len(m.view.Clips)-1 {
			m.selected++
		}

	case key.Matches(msg, keys.Refresh):
		return m, m.run("refresh", m.control.RefreshClipList)

	case key.Matches(msg, keys.Record):
		if m.view.IsRecording {
			return m, m.run("stop recording", m.control.StopRecording)
		}
		if !m.view.RecordEnabled() {
			m.notification = "stop playback before recording"
			return m, nil
		}
		return m, m.run("record", m.control.StartRecording)

	case key.Matches(msg, keys.Play):
		if len(m.view.Clips) == 0 {
			return m, nil
		}
		clip := m.view.Clips[m.selected]
		if m.view.IsPlaying && m.view.IsCurrent(clip.Path) {
			return m, m.run("stop", m.control.StopAudio)
		}
		if !m.view.PlayEnabled() {
			m.notification = "stop recording before playing"
			return m, nil
		}
		return m, m.run("play", func(ctx context.Context) error {
			return m.control.PlayAudio(ctx, clip.Path)
		})

	case key.Matches(msg, keys.Toggle):
		clip := m.view.CurrentClip
		switch {
		case clip == "":
			return m, nil
		case m.view.IsPlaying:
			return m, m.run("stop", m.control.StopAudio)
		case !m.view.PlayEnabled():
			m.notification = "stop recording before playing"
			return m, nil
		}
		return m, m.run("play", func(ctx context.Context) error {
			return m.control.PlayAudio(ctx, clip)
		})

	case key.Matches(msg, keys.Unload):
		if m.view.CurrentClip != "" {
			return m, m.run("stop", m.control.StopAudio)
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("voicememo"))
	b.WriteString("\n\n")
	b.WriteString(m.renderRecorder())
	b.WriteString("\n\n")
	b.WriteString(m.renderClips())
	b.WriteString("\n")
	if panel := m.renderPlayback(); panel != "" {
		b.WriteString(panel)
		b.WriteString("\n")
	}
	if notice := m.notice(); notice != "" {
		b.WriteString(errorStyle.Render(notice))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m Model) renderRecorder() string {
	switch {
	case m.view.IsRecording:
		return recordingStyle.Render(fmt.Sprintf("● REC %s  [space] stop", formatSeconds(m.view.RecordingSeconds)))
	case !m.view.RecordEnabled():
		return mutedStyle.Render("○ record (unavailable while playing)")
	default:
		return "○ ready  [space] record"
	}
}

func (m Model) renderClips() string {
	if len(m.view.Clips) == 0 {
		return mutedStyle.Render("No recordings yet. Press space to record one.")
	}

	var lines []string
	for i, clip := range m.view.Clips {
		control := "▶"
		if m.view.IsPlaying && m.view.IsCurrent(clip.Path) {
			control = "■"
		}

		duration := "--:--"
		if clip.Duration > 0 {
			duration = formatSeconds(int(clip.Duration + 0.5))
		}

		line := fmt.Sprintf("%s %-32s %s", control, clip.Name, duration)
		if i == m.selected {
			lines = append(lines, selectedStyle.Render("> "+line))
		} else {
			lines = append(lines, "  "+line)
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderPlayback() string {
	if m.view.CurrentClip == "" {
		return ""
	}
	name := filepath.Base(m.view.CurrentClip)
	if m.view.IsPlaying {
		return panelStyle.Render(playingStyle.Render(fmt.Sprintf("■ %s  %s  [s] stop", name, formatSeconds(m.view.PlaybackSeconds))))
	}
	return panelStyle.Render(fmt.Sprintf("▶ %s  %s  [s] play", name, formatSeconds(m.view.PlaybackSeconds)))
}

func (m Model) notice() string {
	if m.notification != "" {
		return m.notification
	}
	return m.view.LastError
}

func formatSeconds(total int) string {
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Package tui provides a terminal transport for a playing song.
package tui

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	accent   = lipgloss.Color("#7FDBFF")
	dimGray  = lipgloss.Color("#666666")
	warnPink = lipgloss.Color("#FF6F91")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			MarginBottom(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	errorStyle = lipgloss.NewStyle().
			Foreground(warnPink).
			Bold(true)

	meterStyle = lipgloss.NewStyle().
			Foreground(accent)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimGray).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2)
)

const refreshInterval = 100 * time.Millisecond

// Transport is the player surface the view drives.
type Transport interface {
	SongLength() time.Duration
	SongPosition() time.Duration
	SeekTo(time.Duration) error
	Pause()
	Resume()
	EndOfSequence() bool
	BPM() float64
	MasterVolume() float64
	SetMasterVolume(float64)
}

// ChannelMeter counts note starts per channel. It is fed from the audio
// thread and drained by the view.
type ChannelMeter struct {
	hits [16]atomic.Uint32
}

func (m *ChannelMeter) ReceiveRaw(channel, command, data1, data2 uint8) {
	if command == 0x90 && data2 > 0 {
		m.hits[channel&0x0f].Add(1)
	}
}

// Drain returns and clears the counts since the last call.
func (m *ChannelMeter) Drain() [16]uint32 {
	var out [16]uint32
	for i := range m.hits {
		out[i] = m.hits[i].Swap(0)
	}
	return out
}

type Model struct {
	transport Transport
	meter     *ChannelMeter
	title     string
	seekStep  time.Duration
	bar       progress.Model
	levels    [16]float64
	paused    bool
	ended     bool
	quitting  bool
	err       error
}

type refreshMsg time.Time

// New creates a view for transport. meter may be nil.
func New(title string, transport Transport, meter *ChannelMeter, seekStep time.Duration) Model {
	if seekStep <= 0 {
		seekStep = 5 * time.Second
	}
	return Model{
		transport: transport,
		meter:     meter,
		title:     title,
		seekStep:  seekStep,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(48)),
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return refresh()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case " ", "space", "p":
			if m.paused {
				m.transport.Resume()
			} else {
				m.transport.Pause()
			}
			m.paused = !m.paused
		case "left", "h":
			m.seek(-m.seekStep)
		case "right", "l":
			m.seek(m.seekStep)
		case "home", "0":
			m.seek(-m.transport.SongPosition())
		case "+", "=":
			m.transport.SetMasterVolume(m.transport.MasterVolume() + 0.05)
		case "-":
			m.transport.SetMasterVolume(m.transport.MasterVolume() - 0.05)
		}
		return m, nil
	case tea.WindowSizeMsg:
		w := msg.Width - 12
		if w > 80 {
			w = 80
		}
		if w > 10 {
			m.bar.Width = w
		}
		return m, nil
	case refreshMsg:
		m.decay()
		m.ended = m.transport.EndOfSequence()
		return m, refresh()
	}
	return m, nil
}

func (m *Model) seek(delta time.Duration) {
	target := m.transport.SongPosition() + delta
	if target < 0 {
		target = 0
	}
	m.err = m.transport.SeekTo(target)
	m.ended = false
}

func (m *Model) decay() {
	var hits [16]uint32
	if m.meter != nil {
		hits = m.meter.Drain()
	}
	for i := range m.levels {
		m.levels[i] *= 0.6
		if hits[i] > 0 {
			m.levels[i] = 1
		}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	length := m.transport.SongLength()
	pos := m.transport.SongPosition()
	pct := 0.0
	if length > 0 {
		pct = float64(pos) / float64(length)
	}
	if pct > 1 {
		pct = 1
	}
	b.WriteString(m.bar.ViewAs(pct))
	b.WriteString("\n")

	state := "playing"
	switch {
	case m.ended:
		state = "ended"
	case m.paused:
		state = "paused"
	}
	b.WriteString(statusStyle.Render(fmt.Sprintf("%s / %s  %s  %.1f bpm  vol %.2f",
		formatDuration(pos), formatDuration(length), state,
		m.transport.BPM(), m.transport.MasterVolume())))
	b.WriteString("\n")

	if m.meter != nil {
		b.WriteString(meterStyle.Render(m.meterView()))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("space pause • ←/→ seek • 0 restart • +/- volume • q quit"))
	return boxStyle.Render(b.String())
}

func (m Model) meterView() string {
	const blocks = " ▁▂▃▄▅▆▇█"
	runes := []rune(blocks)
	var b strings.Builder
	for _, lvl := range m.levels {
		idx := int(lvl * float64(len(runes)-1))
		b.WriteRune(runes[idx])
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// Run shows the view until the user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m).Run()
	return err
}

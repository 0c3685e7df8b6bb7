package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/procmon/internal/model"
)

// Info is static context shown in the header.
type Info struct {
	Platform model.PlatformKind
	Cores    int
	ClockHz  uint64
	Burn     int
}

// Model renders live frames from the sampler.
type Model struct {
	info      Info
	latest    model.Frame
	stream    <-chan model.Frame
	ctxCancel context.CancelFunc
	width     int
	height    int
}

func New(stream <-chan model.Frame, info Info, cancel context.CancelFunc) *Model {
	return &Model{
		info:      info,
		latest:    model.Zero(),
		stream:    stream,
		ctxCancel: cancel,
		width:     120,
		height:    40,
	}
}

// Messages
type tickMsg struct{}

func tickCmd() tea.Cmd { return tea.Tick(time.Second/5, func(time.Time) tea.Msg { return tickMsg{} }) }

func (m *Model) Init() tea.Cmd { return tickCmd() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.ctxCancel()
			return m, tea.Quit
		}
	case tickMsg:
		select {
		case f, ok := <-m.stream:
			if !ok {
				return m, tea.Quit
			}
			m.latest = f
		default:
		}
		return m, tickCmd()
	}
	return m, nil
}

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	gaugeFill   = "█"
	gaugeEmpty  = "░"
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

func (m *Model) View() string {
	f := m.latest
	header := titleStyle.Render("procmon") + "  " +
		subtleStyle.Render(fmt.Sprintf("%s | %d cores | %s | every %s | %s",
			m.info.Platform, m.info.Cores, clock(m.info.ClockHz), f.Interval,
			f.Timestamp.Format("Mon Jan 2 15:04:05 MST 2006")))
	if m.info.Burn > 0 {
		header += "  " + labelStyle.Render(fmt.Sprintf("burning %d", m.info.Burn))
	}

	cards := make([]string, 0, len(f.Samples)+1)
	for _, s := range f.Samples {
		cards = append(cards, scopeCard(s))
	}
	if len(f.Errors) > 0 {
		cards = append(cards, errorCard(f.Errors))
	}
	if len(cards) == 0 {
		cards = append(cards, card("Scopes", subtleStyle.Render("waiting for first poll…")))
	}

	h := f.Host
	hostCard := card("Host",
		fmt.Sprintf("%s  %.1f/%.1f GiB\nload %.2f %.2f %.2f",
			gaugeBar(pct(h.MemUsedBytes, h.MemTotalBytes), 28),
			bytesToGiB(h.MemUsedBytes), bytesToGiB(h.MemTotalBytes),
			h.Load1, h.Load5, h.Load15))

	footer := subtleStyle.Render("run " + truncate(f.RunID, 8) + "  q to quit")

	line1 := lipgloss.JoinHorizontal(lipgloss.Top, cards...)
	return lipgloss.JoinVertical(lipgloss.Left, header, line1, hostCard, footer)
}

func scopeCard(s model.Sample) string {
	title := strings.ToUpper(s.Scope.String()[:1]) + s.Scope.String()[1:]
	if s.Scope != model.ScopeProcess {
		title += fmt.Sprintf(" (tid %d)", s.Thread)
	}
	body := fmt.Sprintf("%s\ncpu %.3fs over %dms / %d core(s)\nmem %.1f MiB  up %s",
		gaugeBar(s.CPUPercent, 28),
		s.CPUTime, s.DurationMs, s.Cores,
		bytesToMiB(s.MemoryBytes),
		(time.Duration(s.UptimeMs) * time.Millisecond).Truncate(time.Second))
	return card(title, body)
}

func errorCard(errs map[string]string) string {
	scopes := make([]string, 0, len(errs))
	for scope := range errs {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	lines := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		lines = append(lines, errorStyle.Render(fmt.Sprintf("%-8s %s", scope, truncate(errs[scope], 48))))
	}
	return card("Unavailable", strings.Join(lines, "\n"))
}

// Helpers

// gaugeBar fills at most width cells; the label keeps the real value,
// which exceeds 100% when several cores are busy and one is considered.
func gaugeBar(pct float64, width int) string {
	fill := pct
	if fill < 0 {
		fill = 0
	}
	if fill > 100 {
		fill = 100
	}
	filled := int((fill / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat(gaugeFill, filled),
		strings.Repeat(gaugeEmpty, width-filled),
		pct)
}

func card(title, body string) string {
	titleStr := labelStyle.Render(title)
	content := titleStr + "\n" + body
	return cardStyle.Render(content)
}

func clock(hz uint64) string {
	if hz == 0 {
		return "clock n/a"
	}
	return fmt.Sprintf("%.2f GHz", float64(hz)/1e9)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func pct(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) * 100 / float64(total)
}

func bytesToGiB(b uint64) float64 { return float64(b) / (1024 * 1024 * 1024) }

func bytesToMiB(b uint64) float64 { return float64(b) / (1024 * 1024) }

// RunTUI starts the Bubble Tea program and blocks until the user quits or
// the stream closes.
func RunTUI(stream <-chan model.Frame, info Info, cancel context.CancelFunc) error {
	prog := tea.NewProgram(New(stream, info, cancel), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}

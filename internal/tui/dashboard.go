// Package tui renders a live terminal dashboard of one bench's snapshot
// stream.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"benchd.sh/internal/health"
	"benchd.sh/internal/models"
)

const (
	maxEvents  = 50
	maxHistory = 60
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Event is a line in the dashboard's event log
type Event struct {
	Time    time.Time
	Level   string // info, warning, error
	Message string
}

// SnapshotMsg delivers a streamed snapshot and its assessment
type SnapshotMsg struct {
	Snapshot models.Snapshot
	Verdict  health.HealthStatus
}

// ConnectionMsg reports the stream connecting or dropping. Err is nil on
// a successful (re)connect.
type ConnectionMsg struct {
	Err error
}

type DashboardModel struct {
	source    string
	snapshot  *models.Snapshot
	verdict   health.HealthStatus
	connected bool
	received  int
	cpu       []float64
	events    []Event
	width     int
	height    int
	ready     bool
	quitting  bool
	now       func() time.Time
}

// NewDashboard creates a dashboard titled with the stream source
func NewDashboard(source string) DashboardModel {
	return DashboardModel{
		source: source,
		now:    time.Now,
	}
}

func (m DashboardModel) Init() tea.Cmd {
	return tea.EnterAltScreen
}

func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.events = nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case ConnectionMsg:
		if msg.Err != nil {
			if m.connected || len(m.events) == 0 {
				m.addEvent("error", "stream lost: "+msg.Err.Error())
			}
			m.connected = false
			break
		}
		m.connected = true
		m.addEvent("info", "connected to "+m.source)

	case SnapshotMsg:
		m.connected = true
		m.received++
		if m.snapshot == nil || m.verdict.Status != msg.Verdict.Status {
			m.addEvent(levelFor(msg.Verdict.Status), verdictText(msg.Verdict))
		}
		snap := msg.Snapshot
		m.snapshot = &snap
		m.verdict = msg.Verdict
		if snap.CPU.Error == "" {
			m.cpu = append(m.cpu, snap.CPU.UsagePercent)
			if len(m.cpu) > maxHistory {
				m.cpu = m.cpu[len(m.cpu)-maxHistory:]
			}
		}
	}

	return m, nil
}

func (m *DashboardModel) addEvent(level, message string) {
	m.events = append(m.events, Event{Time: m.now(), Level: level, Message: message})
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m DashboardModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.quitting {
		return "Closing stream...\n"
	}

	var sections []string

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		TitleStyle.Render("benchd "+m.source),
		"  ",
		m.renderBadge(),
	)
	sections = append(sections, header)

	if m.snapshot == nil {
		sections = append(sections, CardStyle.Render("Waiting for first snapshot..."))
	} else {
		sections = append(sections, m.renderCards())
	}

	sections = append(sections, m.renderEvents())

	help := HelpStyle.Render("q: quit • c: clear events")
	sections = append(sections, help)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m DashboardModel) renderBadge() string {
	if !m.connected {
		return StatusDisconnected.Render(" DISCONNECTED ")
	}
	switch m.verdict.Status {
	case health.StatusHealthy:
		return StatusHealthy.Render(" HEALTHY ")
	case health.StatusDegraded:
		return StatusDegraded.Render(" DEGRADED ")
	case health.StatusUnhealthy:
		return StatusUnhealthy.Render(" UNHEALTHY ")
	default:
		return StatusDisconnected.Render(" CONNECTING ")
	}
}

func (m DashboardModel) renderCards() string {
	s := m.snapshot
	cards := []string{
		m.card("System", systemLines(s.System, s.ProcessCount)),
		m.card("CPU", cpuLines(s.CPU, m.cpu)),
		m.card("Memory", memoryLines(s.Memory)),
		m.card("Temperature", temperatureLines(s.Temperature)),
		m.card("Voltage", voltageLines(s.Voltage)),
		m.card("Network", networkLines(s.Network)),
		m.card("Disk", diskLines(s.Disk)),
	}

	// Arrange in grid (2 columns)
	var rows []string
	for i := 0; i < len(cards); i += 2 {
		if i+1 < len(cards) {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[i], cards[i+1]))
		} else {
			rows = append(rows, cards[i])
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m DashboardModel) card(title string, lines []string) string {
	width := m.width/2 - 2
	if width < 30 {
		width = 30
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{CardTitleStyle.Render(title)}, lines...)...,
	)
	return CardStyle.Width(width).Render(content)
}

func (m DashboardModel) renderEvents() string {
	if len(m.events) == 0 {
		return LogStyle.Width(m.logWidth()).Render(MutedStyle.Render("No events yet..."))
	}

	start := len(m.events) - 6
	if start < 0 {
		start = 0
	}

	var lines []string
	for _, e := range m.events[start:] {
		lines = append(lines, renderEvent(e))
	}
	return LogStyle.Width(m.logWidth()).Render(strings.Join(lines, "\n"))
}

func (m DashboardModel) logWidth() int {
	if m.width < 40 {
		return 36
	}
	return m.width - 4
}

func renderEvent(e Event) string {
	var levelStyle lipgloss.Style
	var level string

	switch e.Level {
	case "warning":
		levelStyle = LogWarningStyle
		level = "WARN "
	case "error":
		levelStyle = LogErrorStyle
		level = "ERROR"
	default:
		levelStyle = LogInfoStyle
		level = "INFO "
	}

	return fmt.Sprintf("%s %s %s",
		MutedStyle.Render(e.Time.Format("15:04:05")),
		levelStyle.Render(level),
		e.Message,
	)
}

func levelFor(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return "info"
	case health.StatusDegraded:
		return "warning"
	default:
		return "error"
	}
}

func verdictText(v health.HealthStatus) string {
	if v.Message == "" {
		return "bench " + string(v.Status)
	}
	return fmt.Sprintf("bench %s: %s", v.Status, v.Message)
}

func unavailable(reason string) []string {
	return []string{MutedStyle.Render("unavailable: " + reason)}
}

func systemLines(s models.SystemInfo, p models.ProcessCount) []string {
	procs := "N/A"
	if p.Available {
		procs = fmt.Sprintf("%d", p.Count)
	}
	return []string{
		fmt.Sprintf("%s %s (%s)", s.Platform, s.PlatformRelease, s.Architecture),
		"host  " + s.Hostname,
		"procs " + procs,
	}
}

func cpuLines(c models.CPUInfo, history []float64) []string {
	if c.Error != "" {
		return unavailable(c.Error)
	}
	freq := "freq  N/A"
	if c.FrequencyMHz != nil {
		freq = fmt.Sprintf("freq  %.0f MHz", *c.FrequencyMHz)
	}
	return []string{
		fmt.Sprintf("usage %.1f%% of %d cores", c.UsagePercent, c.Count),
		freq,
		Sparkline(history),
	}
}

func memoryLines(mem models.MemoryInfo) []string {
	if mem.Error != "" {
		return unavailable(mem.Error)
	}
	return []string{
		fmt.Sprintf("used  %.1f%%", mem.Percent),
		fmt.Sprintf("%.0f / %.0f MB", mem.UsedMB, mem.TotalMB),
	}
}

func temperatureLines(t models.TemperatureInfo) []string {
	if !t.Available || t.Celsius == nil {
		return []string{MutedStyle.Render("N/A")}
	}
	return []string{fmt.Sprintf("%.1f°C", *t.Celsius)}
}

func voltageLines(v models.VoltageInfo) []string {
	lines := []string{"status " + string(v.Status)}
	if v.HexValue != nil {
		lines = append(lines, "raw    "+*v.HexValue)
	}
	if f := v.Flags; f != nil {
		var active []string
		for _, flag := range []struct {
			name string
			set  bool
		}{
			{"under-voltage", f.UnderVoltage},
			{"frequency capped", f.FrequencyCapped},
			{"throttled", f.Throttled},
			{"soft temp limit", f.SoftTempLimit},
		} {
			if flag.set {
				active = append(active, flag.name)
			}
		}
		if len(active) > 0 {
			lines = append(lines, LogWarningStyle.Render(strings.Join(active, ", ")))
		}
	}
	return lines
}

func networkLines(n models.NetworkInfo) []string {
	if n.Error != "" {
		return unavailable(n.Error)
	}
	return []string{
		fmt.Sprintf("sent %.1f MB", n.MbpsSent),
		fmt.Sprintf("recv %.1f MB", n.MbpsRecv),
	}
}

func diskLines(d models.DiskInfo) []string {
	if d.Error != "" {
		return unavailable(d.Error)
	}
	return []string{
		fmt.Sprintf("root %.1f%% of %.1f GB", d.Root.Percent, d.Root.TotalGB),
		fmt.Sprintf("free %.1f GB", d.Root.FreeGB),
	}
}

// Sparkline renders percentages (0-100) as block characters
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	var b strings.Builder
	top := len(sparkBlocks) - 1
	for _, v := range values {
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		b.WriteRune(sparkBlocks[int(v/100*float64(top)+0.5)])
	}
	return b.String()
}

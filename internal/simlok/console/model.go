// Package console is a terminal detail view of one submission, kept live by a
// syncer.Controller.
package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/lifecycle"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/syncer"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/workflow"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controller is the part of *syncer.Controller the view drives.
type Controller interface {
	Open(id string)
	Close()
	Refresh()
	BeginEdit()
	EndEdit()
	Editing() bool
	Mode() syncer.Mode
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(22)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// Model is the bubbletea model of the detail view.
type Model struct {
	ctrl   Controller
	events <-chan tea.Msg
	id     string
	role   lifecycle.Role

	sub      *entity.Submission
	scans    []entity.ScanRecord
	loading  bool
	status   string
	notice   string
	gone     bool
	spinner  spinner.Model
	width    int
	now      func() time.Time
	quitting bool
}

// New builds the view for submission id. events must be the channel passed to Hooks.
func New(ctrl Controller, events <-chan tea.Msg, id string, role lifecycle.Role) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = pendingStyle
	return Model{
		ctrl:    ctrl,
		events:  events,
		id:      id,
		role:    role,
		loading: true,
		status:  "Loading submission...",
		spinner: sp,
		width:   80,
		now:     time.Now,
	}
}

// Init opens the controller session.
func (m Model) Init() tea.Cmd {
	m.ctrl.Open(m.id)
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update is called when a message is received.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case updateMsg:
		m.sub = msg.sub
		m.loading = false
		m.notice = ""
		m.status = "Updated " + m.now().Format("15:04:05")
		return m, waitForEvent(m.events)

	case scansMsg:
		m.scans = msg.scans
		return m, waitForEvent(m.events)

	case errorMsg:
		m.loading = false
		switch workflow.Classify(msg.err) {
		case workflow.KindConflict:
			m.notice = "Submission changed elsewhere; press r to reload."
		default:
			m.notice = fmt.Sprintf("Refresh failed: %v (press r to retry)", msg.err)
		}
		return m, waitForEvent(m.events)

	case notFoundMsg:
		m.gone = true
		m.loading = false
		m.notice = fmt.Sprintf("Submission %s no longer exists. Closing.", msg.id)
		return m, waitForEvent(m.events)

	case closedMsg:
		m.status = "Closed"
		return m, waitForEvent(m.events)

	case clearMsg:
		m.sub = nil
		m.scans = nil
		return m, waitForEvent(m.events)

	case reloadMsg:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		m.ctrl.Close()
		m.quitting = true
		return m, tea.Quit
	case "r":
		if m.gone {
			return m, nil
		}
		m.ctrl.Refresh()
		m.loading = true
		m.status = "Refreshing..."
		return m, m.spinner.Tick
	case "e":
		if m.gone {
			return m, nil
		}
		if m.ctrl.Editing() {
			m.ctrl.EndEdit()
			m.status = "Edit session closed"
		} else {
			m.ctrl.BeginEdit()
			m.status = "Editing: automatic refresh paused"
		}
		return m, nil
	}
	return m, nil
}

// View renders the model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	header := titleStyle.Render("SIMLOK " + m.id)
	mode := hintStyle.Render(fmt.Sprintf("[%s]", m.ctrl.Mode()))
	if m.ctrl.Editing() {
		mode += " " + pendingStyle.Render("[editing]")
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header, " ", mode))
	b.WriteString("\n\n")

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n\n")
	}

	switch {
	case m.sub != nil:
		b.WriteString(boxStyle.Width(max(40, m.width-4)).Render(m.renderSubmission()))
		b.WriteString("\n")
	case m.loading:
		b.WriteString(m.spinner.View() + " " + m.status + "\n")
	}

	status := m.status
	if m.loading && m.sub != nil {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(hintStyle.Render(status))
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("r refresh  e edit  q close"))
	return b.String()
}

func (m Model) renderSubmission() string {
	s := m.sub
	rows := []string{
		row("Vendor", s.VendorName),
		row("Job", s.JobDescription),
		row("Location", s.WorkLocation),
		row("Review", reviewBadge(s.ReviewStatus)),
		row("Approval", approvalBadge(s.ApprovalStatus)),
		row("Implementation", fmt.Sprintf("%s to %s", dash(s.ImplementationStartDate.String()), dash(s.ImplementationEndDate.String()))),
		row("Working hours", dash(s.WorkingHours)),
	}
	if s.HolidayWorkingHours != "" {
		rows = append(rows, row("Holiday hours", s.HolidayWorkingHours))
	}
	if s.SimlokNumber != "" {
		rows = append(rows, row("SIMLOK", fmt.Sprintf("%s (%s)", s.SimlokNumber, s.SimlokDate)))
	}
	rows = append(rows, row("Workers", fmt.Sprintf("%d declared, %d listed", s.WorkerCount, len(s.Workers))))
	for _, w := range s.Workers {
		rows = append(rows, row("", fmt.Sprintf("%s  HSSE %s until %s", w.Name, w.HSSEPassNumber, w.HSSEPassValidThru)))
	}
	rows = append(rows, row("Scans", fmt.Sprintf("%d", len(m.scans))))
	if len(m.scans) > 0 {
		last := m.scans[0]
		rows = append(rows, row("", fmt.Sprintf("last %s at %s by %s", last.ScannedAt.Format("2006-01-02 15:04"), last.Location, last.ScannedBy)))
	}

	if m.role != "" {
		var names []string
		for _, ev := range lifecycle.Actions(m.role, lifecycle.StateOf(s)) {
			names = append(names, string(ev))
		}
		if len(names) == 0 {
			names = []string{"none"}
		}
		rows = append(rows, row("Actions ("+string(m.role)+")", strings.Join(names, ", ")))
	}
	return strings.Join(rows, "\n")
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func reviewBadge(s entity.ReviewStatus) string {
	switch s {
	case entity.ReviewStatusMeets:
		return okStyle.Render(string(s))
	case entity.ReviewStatusNotMeets:
		return badStyle.Render(string(s))
	}
	return pendingStyle.Render(string(s))
}

func approvalBadge(s entity.ApprovalStatus) string {
	switch s {
	case entity.ApprovalStatusApproved:
		return okStyle.Render(string(s))
	case entity.ApprovalStatusRejected:
		return badStyle.Render(string(s))
	}
	return pendingStyle.Render(string(s))
}

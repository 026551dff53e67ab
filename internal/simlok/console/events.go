package console

import (
	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/syncer"
	tea "github.com/charmbracelet/bubbletea"
)

type updateMsg struct{ sub *entity.Submission }

type scansMsg struct{ scans []entity.ScanRecord }

type notFoundMsg struct{ id string }

type errorMsg struct{ err error }

type closedMsg struct{}

type reloadMsg struct{}

type clearMsg struct{}

// Hooks returns controller hooks that forward every callback into events. Sends never
// block; a full buffer drops the callback.
func Hooks(events chan<- tea.Msg) syncer.Hooks {
	send := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
		}
	}
	return syncer.Hooks{
		OnUpdate:   func(sub *entity.Submission) { send(updateMsg{sub: sub}) },
		OnScans:    func(scans []entity.ScanRecord) { send(scansMsg{scans: scans}) },
		OnNotFound: func(id string) { send(notFoundMsg{id: id}) },
		OnError:    func(err error) { send(errorMsg{err: err}) },
		OnClose:    func() { send(closedMsg{}) },
		Reload:     func() { send(reloadMsg{}) },
		OnClear:    func() { send(clearMsg{}) },
	}
}

// waitForEvent delivers the next controller callback to Update.
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

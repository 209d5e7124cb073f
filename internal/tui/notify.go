package tui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/lightbeam/internal/tracker"
)

// ProgramNotifier forwards engine notifications into a running bubbletea
// program. The program is attached after construction because the engine
// needs a notifier before the program exists.
type ProgramNotifier struct {
	program atomic.Pointer[tea.Program]
}

func NewProgramNotifier() *ProgramNotifier {
	return &ProgramNotifier{}
}

func (n *ProgramNotifier) Attach(p *tea.Program) {
	n.program.Store(p)
}

func (n *ProgramNotifier) Notify(notification tracker.Notification) {
	if p := n.program.Load(); p != nil {
		p.Send(notificationMsg{n: notification})
	}
}

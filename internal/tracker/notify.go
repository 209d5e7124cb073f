package tracker

import (
	"github.com/sadopc/lightbeam/internal/logger"
	"github.com/sadopc/lightbeam/internal/store"
)

// Notification kinds. The engine only decides what to recommend; delivery
// belongs to the UI layer.
const (
	NotifyTargetWarning  = "target_warning"  // session ran past its target
	NotifyAutoSwitch     = "auto_switch"     // session closed, opposite mode started
	NotifyDistracted     = "distracted"      // distracting activity during focus
	NotifyScheduleStart  = "schedule_start"  // scheduled session materialized
	NotifyScheduleChange = "schedule_change" // running session stopped for a schedule
	NotifyPermission     = "permission"      // window access denied
)

// Notification choices offered to the user for distracted activity.
var DistractedChoices = []string{"whitelist", "dismiss", "break"}

type Notification struct {
	Kind     string
	Message  string
	Stage    int // warning escalation stage, 1..3
	Entry    *store.TimeEntry
	Activity *store.Activity
	Choices  []string
}

// Notifier receives engine decisions. Implementations must be quick; the
// engine calls them inline on its tick.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier is the default sink when no UI is attached.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(notification Notification) {
	n.log.Info("notification",
		"kind", notification.Kind,
		"message", notification.Message,
		"stage", notification.Stage,
	)
}

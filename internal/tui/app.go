// Package tui is lightbeam's live monitor: a session timer view and a recent
// activity view over the running engine. Board and dashboard rendering live
// in the desktop UI, not here.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/lightbeam/internal/store"
	"github.com/sadopc/lightbeam/internal/tracker"
)

const activityLimit = 15

type App struct {
	engine *tracker.Engine
	store  *store.Store

	view   viewState
	width  int
	height int

	help     help.Model
	showHelp bool

	status    string
	statusErr bool

	entry  *store.TimeEntry
	paused *tracker.PausedSession

	activities []store.Activity
	cursor     int
	categories map[int64]string

	form         *huh.Form
	formRating   int
	formActivity *store.Activity
}

func NewApp(engine *tracker.Engine) *App {
	return &App{
		engine:     engine,
		store:      engine.Store(),
		help:       help.New(),
		categories: make(map[int64]string),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(tick(), a.refresh())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh reloads session and activity state from the store.
func (a *App) refresh() tea.Cmd {
	return func() tea.Msg {
		entry, err := a.engine.ActiveSession()
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return sessionChangedMsg{entry: entry}
	}
}

func (a *App) loadActivities() tea.Cmd {
	return func() tea.Msg {
		activities, err := a.store.ListActivities(a.userID(), store.ActivityFilter{Limit: activityLimit})
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return activitiesLoadedMsg{activities: activities}
	}
}

func (a *App) userID() string {
	id, _ := a.store.UserID()
	return id
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// An open rating form swallows everything except resize and tick.
	if a.form != nil {
		switch msg.(type) {
		case tea.WindowSizeMsg, tickMsg:
		default:
			return a.updateForm(msg)
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		return a, nil

	case tickMsg:
		a.paused = a.engine.GetPausedSession()
		return a, tea.Batch(tick(), a.refresh(), a.loadActivities(), a.loadCategories())

	case sessionChangedMsg:
		a.entry = msg.entry
		return a, nil

	case activitiesLoadedMsg:
		a.activities = msg.activities
		if a.cursor >= len(a.activities) {
			a.cursor = max(0, len(a.activities)-1)
		}
		return a, nil

	case categoriesLoadedMsg:
		a.categories = msg.paths
		return a, nil

	case statusMsg:
		a.status = msg.text
		a.statusErr = msg.isError
		return a, nil

	case notificationMsg:
		a.status = msg.n.Message
		a.statusErr = false
		return a, nil

	case tea.KeyMsg:
		return a.updateKeys(msg)
	}
	return a, nil
}

func (a *App) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, keys.Help):
		a.showHelp = !a.showHelp
		return a, nil

	case key.Matches(msg, keys.Tab1):
		a.view = viewSession
		return a, nil

	case key.Matches(msg, keys.Tab2):
		a.view = viewActivity
		return a, nil

	case key.Matches(msg, keys.Tab):
		a.view = (a.view + 1) % viewState(len(viewNames))
		return a, nil

	case key.Matches(msg, keys.Start):
		return a, a.startSession()

	case key.Matches(msg, keys.Stop):
		return a, a.stopSession()

	case key.Matches(msg, keys.Pause):
		return a, a.togglePause()
	}

	if a.view == viewActivity {
		return a.updateActivityKeys(msg)
	}
	return a, nil
}

func (a *App) updateActivityKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
	case key.Matches(msg, keys.Down):
		if a.cursor < len(a.activities)-1 {
			a.cursor++
		}
	case key.Matches(msg, keys.Rate), key.Matches(msg, keys.Enter):
		if a.cursor < len(a.activities) {
			a.openRatingForm(a.activities[a.cursor])
		}
	case key.Matches(msg, keys.Whitelist):
		if a.cursor < len(a.activities) {
			name := a.activities[a.cursor].OwnerName
			return a, func() tea.Msg {
				if err := a.engine.WhitelistActivity(name); err != nil {
					return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
				}
				return statusMsg{text: fmt.Sprintf("%s whitelisted for this session", name)}
			}
		}
	}
	return a, nil
}

func (a *App) startSession() tea.Cmd {
	return func() tea.Msg {
		target := int64(25)
		if v, err := a.store.GetSetting("focus_target_minutes"); err == nil {
			fmt.Sscanf(v, "%d", &target)
		}
		_, err := a.engine.StartSession(tracker.StartOptions{
			IsFocusMode:    true,
			TargetDuration: &target,
			AutoStop:       true,
		})
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return statusMsg{text: "Focus session started"}
	}
}

func (a *App) stopSession() tea.Cmd {
	return func() tea.Msg {
		entry, err := a.engine.StopSession()
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		var secs int64
		if entry.Duration != nil {
			secs = *entry.Duration
		}
		return statusMsg{text: "Session stopped after " + formatSeconds(secs)}
	}
}

func (a *App) togglePause() tea.Cmd {
	return func() tea.Msg {
		if a.engine.GetPausedSession() != nil {
			if err := a.engine.ManualResumeSession(); err != nil {
				return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
			}
			return statusMsg{text: "Session resumed"}
		}
		if _, err := a.engine.ManualPauseSession(); err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return statusMsg{text: "Session paused"}
	}
}

// --- Rating form ---

func (a *App) openRatingForm(activity store.Activity) {
	act := activity
	a.formActivity = &act
	a.formRating = store.RatingProductive
	a.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(fmt.Sprintf("Rate %q", activity.OwnerName)).
				Description("A rule is saved so similar activity is rated automatically.").
				Options(
					huh.NewOption("Productive", store.RatingProductive),
					huh.NewOption("Distracting", store.RatingDistracting),
				).
				Value(&a.formRating),
		),
	)
}

func (a *App) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.form = f
	}

	switch a.form.State {
	case huh.StateCompleted:
		activity := a.formActivity
		rating := a.formRating
		a.form = nil
		a.formActivity = nil
		return a, func() tea.Msg {
			rule, err := a.engine.RateActivity(activity.ID, rating)
			if err != nil {
				return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
			}
			target := rule.AppName
			if rule.Domain != "" {
				target = rule.Domain
			}
			return statusMsg{text: fmt.Sprintf("Rated, rule saved for %s", target)}
		}
	case huh.StateAborted:
		a.form = nil
		a.formActivity = nil
		return a, nil
	}
	return a, cmd
}

// --- View ---

func (a *App) View() string {
	if a.width == 0 {
		return "loading..."
	}

	header := a.renderTabs()

	var body string
	if a.form != nil {
		body = panelStyle.Width(a.width - 4).Render(a.form.View())
	} else {
		switch a.view {
		case viewSession:
			body = a.renderSession()
		case viewActivity:
			body = a.renderActivities()
		}
	}

	status := ""
	if a.status != "" {
		if a.statusErr {
			status = errorStyle.Render(a.status)
		} else {
			status = highlightStyle.Render(a.status)
		}
	}

	a.help.ShowAll = a.showHelp
	footer := footerStyle.Render(a.help.View(keys))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, status, footer)
}

func (a *App) renderTabs() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.view {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)
}

func (a *App) renderSession() string {
	w := a.width - 4

	if a.entry == nil {
		content := lipgloss.JoinVertical(lipgloss.Center,
			titleStyle.Render("No active session"),
			"",
			mutedStyle.Render("Press s to start a focus session"),
		)
		return panelStyle.Width(w).Render(content)
	}

	mode := "BREAK"
	modeStyle := highlightStyle
	if a.entry.IsFocusMode {
		mode = "FOCUS"
		modeStyle = accentStyle
	}

	now := time.Now()
	elapsed := now.Sub(a.entry.StartTime)
	timer := timerRunningStyle
	state := ""
	if a.paused != nil {
		elapsed = a.paused.PausedAt.Sub(a.paused.OriginalStartTime)
		timer = timerPausedStyle
		if a.paused.IsManualPause {
			state = warningStyle.Render("PAUSED")
		} else {
			state = warningStyle.Render("PAUSED (system idle)")
		}
	}

	lines := []string{
		modeStyle.Bold(true).Render(mode),
		"",
		timer.Width(w - 6).Render(formatDuration(elapsed)),
	}
	if a.entry.TargetDuration != nil {
		target := time.Duration(*a.entry.TargetDuration) * time.Minute
		remaining := target - elapsed
		if remaining >= 0 {
			lines = append(lines, mutedStyle.Render("Target "+formatDuration(target)+", "+formatDuration(remaining)+" left"))
		} else {
			lines = append(lines, warningStyle.Render(formatDuration(-remaining)+" past target"))
		}
	}
	if state != "" {
		lines = append(lines, "", state)
	}

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Center, lines...))
}

func (a *App) renderActivities() string {
	w := a.width - 4

	if len(a.activities) == 0 {
		return panelStyle.Width(w).Render(mutedStyle.Render("No activity captured yet"))
	}

	var rows []string
	rows = append(rows, titleStyle.Render("Recent activity"), "")
	for i, act := range a.activities {
		title := act.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		category := mutedStyle.Render("uncategorized")
		if act.CategoryID != nil {
			if path, ok := a.categories[*act.CategoryID]; ok {
				category = highlightStyle.Render(path)
			}
		}
		line := fmt.Sprintf("%-20s %-40s %8s  %s  %s",
			act.OwnerName, title, formatSeconds(act.Duration), ratingLabel(act.Rating), category)
		if i == a.cursor {
			rows = append(rows, selectedItemStyle.Render("> "+line))
		} else {
			rows = append(rows, normalItemStyle.Render("  "+line))
		}
	}
	rows = append(rows, "", mutedStyle.Render("r: rate  w: whitelist"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// --- Category paths ---

type categoriesLoadedMsg struct {
	paths map[int64]string
}

func (a *App) loadCategories() tea.Cmd {
	return func() tea.Msg {
		cats, err := a.store.ListCategories(a.userID())
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		paths := make(map[int64]string, len(cats))
		for _, c := range cats {
			paths[c.ID] = c.Path
		}
		return categoriesLoadedMsg{paths: paths}
	}
}

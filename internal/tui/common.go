package tui

import (
	"fmt"
	"time"

	"github.com/sadopc/lightbeam/internal/store"
	"github.com/sadopc/lightbeam/internal/tracker"
)

// viewState represents the currently active view.
type viewState int

const (
	viewSession viewState = iota
	viewActivity
)

var viewNames = []string{"Session", "Activity"}

// --- Messages ---

type tickMsg time.Time

type sessionChangedMsg struct {
	entry *store.TimeEntry
}

type activitiesLoadedMsg struct {
	activities []store.Activity
}

type statusMsg struct {
	text    string
	isError bool
}

type notificationMsg struct {
	n tracker.Notification
}

// --- Helpers ---

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatSeconds(secs int64) string {
	return formatDuration(time.Duration(secs) * time.Second)
}

func ratingLabel(rating *int) string {
	if rating == nil {
		return mutedStyle.Render("unrated")
	}
	if *rating == store.RatingProductive {
		return successStyle.Render("productive")
	}
	return errorStyle.Render("distracting")
}

// Package rules decides whether an activity counts as productive or
// distracting, using the user's rule set with a specificity tie-break.
package rules

import (
	"net/url"
	"sort"
	"strings"

	"github.com/sadopc/lightbeam/internal/store"
)

// RuleReader is the slice of the store the matcher needs.
type RuleReader interface {
	ListActiveRules(userID string) ([]store.Rule, error)
}

type Matcher struct {
	store RuleReader
}

func NewMatcher(s RuleReader) *Matcher {
	return &Matcher{store: s}
}

// FindMatchingRule returns the most specific active rule matching the
// activity, or nil when none does. Absence of a match is not an error.
func (m *Matcher) FindMatchingRule(userID string, a store.Activity) (*store.Rule, error) {
	rules, err := m.store.ListActiveRules(userID)
	if err != nil {
		return nil, err
	}

	domain := ""
	if a.URL != nil {
		domain = ExtractDomain(*a.URL)
	}

	var candidates []store.Rule
	for _, r := range rules {
		// Pre-filter: the rule must anchor on the activity's domain (URL
		// activities) or app name before the full predicate is evaluated.
		if domain != "" {
			if r.Domain != domain && r.AppName != a.OwnerName {
				continue
			}
		} else if r.AppName != a.OwnerName {
			continue
		}
		if ruleMatches(r, a, domain) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sortBySpecificity(candidates)
	return &candidates[0], nil
}

// ruleMatches evaluates the full predicate. Empty rule fields match
// vacuously.
func ruleMatches(r store.Rule, a store.Activity, domain string) bool {
	if r.AppName != "" && r.AppName != a.OwnerName {
		return false
	}
	if r.Domain != "" && r.Domain != domain {
		return false
	}
	if !titleMatches(r, a.Title) {
		return false
	}
	return durationMatches(r, a.Duration)
}

func titleMatches(r store.Rule, title string) bool {
	if r.Title == "" || r.TitleCondition == "" {
		return true
	}
	switch r.TitleCondition {
	case store.TitleCondContains:
		return strings.Contains(title, r.Title)
	case store.TitleCondStartsWith:
		return strings.HasPrefix(title, r.Title)
	case store.TitleCondEndsWith:
		return strings.HasSuffix(title, r.Title)
	case store.TitleCondEquals:
		return title == r.Title
	}
	return false
}

func durationMatches(r store.Rule, duration int64) bool {
	if r.Duration == nil || r.DurationCondition == "" {
		return true
	}
	switch r.DurationCondition {
	case store.DurCondGreater:
		return duration > *r.Duration
	case store.DurCondLess:
		return duration < *r.Duration
	case store.DurCondEquals:
		return duration == *r.Duration
	case store.DurCondGreaterEqual:
		return duration >= *r.Duration
	case store.DurCondLessEqual:
		return duration <= *r.Duration
	}
	return false
}

// sortBySpecificity orders rules most specific first: a title condition beats
// a duration condition, blocking rules beat allowing rules, then newest
// created wins.
func sortBySpecificity(rules []store.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]

		aTitle := a.Title != "" && a.TitleCondition != ""
		bTitle := b.Title != "" && b.TitleCondition != ""
		if aTitle != bTitle {
			return aTitle
		}

		aDur := a.Duration != nil && a.DurationCondition != ""
		bDur := b.Duration != nil && b.DurationCondition != ""
		if aDur != bDur {
			return aDur
		}

		aBlocks := a.Rating == store.RatingDistracting
		bBlocks := b.Rating == store.RatingDistracting
		if aBlocks != bBlocks {
			return aBlocks
		}

		return a.CreatedAt.After(b.CreatedAt)
	})
}

// ExtractDomain pulls the bare host out of a URL: scheme, port, path, and a
// leading www. are stripped.
func ExtractDomain(raw string) string {
	if raw == "" {
		return ""
	}
	s := raw
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		// Fall back to a rough cut for malformed URLs.
		s = raw
		if i := strings.Index(s, "://"); i >= 0 {
			s = s[i+3:]
		}
		for _, sep := range []string{"/", "?", "#", ":"} {
			if i := strings.Index(s, sep); i >= 0 {
				s = s[:i]
			}
		}
		return strings.TrimPrefix(strings.ToLower(s), "www.")
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

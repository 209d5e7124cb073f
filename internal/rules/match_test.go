package rules

import (
	"testing"
	"time"

	"github.com/sadopc/lightbeam/internal/store"
)

// fakeRules serves a fixed rule set without a database.
type fakeRules struct {
	rules []store.Rule
}

func (f *fakeRules) ListActiveRules(userID string) ([]store.Rule, error) {
	return f.rules, nil
}

func i64(v int64) *int64 { return &v }
func str(v string) *string {
	return &v
}

func activity(owner, title string, url *string, duration int64) store.Activity {
	return store.Activity{
		UserID:    "u",
		OwnerName: owner,
		Title:     title,
		URL:       url,
		Duration:  duration,
	}
}

func TestFindMatchingRuleByApp(t *testing.T) {
	m := NewMatcher(&fakeRules{rules: []store.Rule{
		{ID: 1, AppName: "Messenger", Rating: store.RatingDistracting},
		{ID: 2, AppName: "Editor", Rating: store.RatingProductive},
	}})

	r, err := m.FindMatchingRule("u", activity("Editor", "main.go", nil, 5))
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.ID != 2 {
		t.Fatalf("got %+v, want rule 2", r)
	}

	r, err = m.FindMatchingRule("u", activity("Unknown", "", nil, 5))
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatalf("expected no match, got %+v", r)
	}
}

func TestFindMatchingRuleByDomain(t *testing.T) {
	m := NewMatcher(&fakeRules{rules: []store.Rule{
		{ID: 1, Domain: "youtube.com", Rating: store.RatingDistracting},
	}})

	r, err := m.FindMatchingRule("u", activity("Browser", "cat videos", str("https://www.youtube.com/watch?v=x"), 5))
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.ID != 1 {
		t.Fatalf("got %+v, want rule 1", r)
	}

	// A different domain does not match even with the same browser.
	r, err = m.FindMatchingRule("u", activity("Browser", "docs", str("https://docs.example.com"), 5))
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatalf("expected no match, got %+v", r)
	}
}

func TestTitleConditionBeatsDurationCondition(t *testing.T) {
	m := NewMatcher(&fakeRules{rules: []store.Rule{
		{ID: 1, AppName: "Browser", Duration: i64(60), DurationCondition: store.DurCondGreater, Rating: store.RatingDistracting},
		{ID: 2, AppName: "Browser", Title: "tutorial", TitleCondition: store.TitleCondContains, Rating: store.RatingProductive},
	}})

	r, err := m.FindMatchingRule("u", activity("Browser", "Go tutorial part 3", nil, 120))
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.ID != 2 {
		t.Fatalf("got %+v, want title rule 2", r)
	}
}

func TestBlockingRuleBeatsAllowing(t *testing.T) {
	m := NewMatcher(&fakeRules{rules: []store.Rule{
		{ID: 1, AppName: "Browser", Rating: store.RatingProductive},
		{ID: 2, AppName: "Browser", Rating: store.RatingDistracting},
	}})

	r, err := m.FindMatchingRule("u", activity("Browser", "anything", nil, 5))
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.ID != 2 {
		t.Fatalf("got %+v, want blocking rule 2", r)
	}
}

func TestNewestRuleWinsFinalTieBreak(t *testing.T) {
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(24 * time.Hour)
	m := NewMatcher(&fakeRules{rules: []store.Rule{
		{ID: 1, AppName: "Browser", Rating: store.RatingDistracting, CreatedAt: old},
		{ID: 2, AppName: "Browser", Rating: store.RatingDistracting, CreatedAt: recent},
	}})

	r, err := m.FindMatchingRule("u", activity("Browser", "x", nil, 5))
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.ID != 2 {
		t.Fatalf("got %+v, want newer rule 2", r)
	}
}

func TestTitleConditions(t *testing.T) {
	cases := []struct {
		cond  string
		value string
		title string
		want  bool
	}{
		{store.TitleCondContains, "doc", "my document", true},
		{store.TitleCondContains, "doc", "spreadsheet", false},
		{store.TitleCondStartsWith, "my", "my document", true},
		{store.TitleCondStartsWith, "doc", "my document", false},
		{store.TitleCondEndsWith, "ment", "my document", true},
		{store.TitleCondEquals, "my document", "my document", true},
		{store.TitleCondEquals, "my", "my document", false},
	}
	for _, tc := range cases {
		r := store.Rule{Title: tc.value, TitleCondition: tc.cond}
		if got := titleMatches(r, tc.title); got != tc.want {
			t.Errorf("titleMatches(%q %s, %q) = %v, want %v", tc.value, tc.cond, tc.title, got, tc.want)
		}
	}
}

func TestDurationConditions(t *testing.T) {
	cases := []struct {
		cond     string
		limit    int64
		duration int64
		want     bool
	}{
		{store.DurCondGreater, 60, 61, true},
		{store.DurCondGreater, 60, 60, false},
		{store.DurCondLess, 60, 59, true},
		{store.DurCondEquals, 60, 60, true},
		{store.DurCondGreaterEqual, 60, 60, true},
		{store.DurCondLessEqual, 60, 61, false},
	}
	for _, tc := range cases {
		r := store.Rule{Duration: &tc.limit, DurationCondition: tc.cond}
		if got := durationMatches(r, tc.duration); got != tc.want {
			t.Errorf("durationMatches(%s %d, %d) = %v, want %v", tc.cond, tc.limit, tc.duration, got, tc.want)
		}
	}
}

func TestRuleWithUnmetConditionDoesNotMatch(t *testing.T) {
	m := NewMatcher(&fakeRules{rules: []store.Rule{
		{ID: 1, AppName: "Browser", Title: "news", TitleCondition: store.TitleCondContains, Rating: store.RatingDistracting},
	}})

	r, err := m.FindMatchingRule("u", activity("Browser", "documentation", nil, 5))
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatalf("expected no match when the title condition fails, got %+v", r)
	}
}

func TestExtractDomain(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc", "youtube.com"},
		{"http://example.com:8080/path", "example.com"},
		{"docs.example.com/page", "docs.example.com"},
		{"WWW.Example.COM", "example.com"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ExtractDomain(tc.raw); got != tc.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestSuggestFromActivity(t *testing.T) {
	withURL := activity("Browser", "feed", str("https://www.social.example/home"), 5)
	r := SuggestFromActivity(withURL, store.RatingDistracting)
	if r.Domain != "social.example" || r.AppName != "" {
		t.Fatalf("suggested %+v, want domain rule", r)
	}
	if r.Rating != store.RatingDistracting || !r.Active {
		t.Fatalf("suggested %+v", r)
	}

	noURL := activity("Editor", "main.go", nil, 5)
	r = SuggestFromActivity(noURL, store.RatingProductive)
	if r.AppName != "Editor" || r.Domain != "" {
		t.Fatalf("suggested %+v, want app rule", r)
	}
}

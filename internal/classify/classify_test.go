package classify

import (
	"testing"

	"github.com/sadopc/lightbeam/internal/logger"
	"github.com/sadopc/lightbeam/internal/platform"
	"github.com/sadopc/lightbeam/internal/store"
)

const testUser = "user-1"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func categoryID(t *testing.T, s *store.Store, path string) int64 {
	t.Helper()
	c, err := s.GetCategoryByPath(testUser, path)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatalf("no category at %s", path)
	}
	return c.ID
}

func addMapping(t *testing.T, s *store.Store, m store.CategoryMapping) store.CategoryMapping {
	t.Helper()
	m.UserID = testUser
	m.IsActive = true
	saved, err := s.UpsertMapping(m)
	if err != nil {
		t.Fatal(err)
	}
	return *saved
}

func str(v string) *string { return &v }

// fixedResolver returns one canned suggestion for every bundle id.
type fixedResolver struct {
	suggestion platform.CategorySuggestion
	ok         bool
}

func (r fixedResolver) Resolve(string) (platform.CategorySuggestion, bool) {
	return r.suggestion, r.ok
}

func TestClassifyAppNameMapping(t *testing.T) {
	s := newTestStore(t)
	dev := categoryID(t, s, "/Work/Development")
	m := addMapping(t, s, store.CategoryMapping{
		CategoryID: dev, AppName: "Editor", MatchType: store.MatchExact, Priority: 80,
	})

	c := NewClassifier(s, nil, logger.NewNop())
	got, err := c.Classify(testUser, store.Activity{UserID: testUser, OwnerName: "Editor", Title: "main.go"})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.CategoryID != dev || got.Source != SourceMapping || got.MappingID != m.ID {
		t.Fatalf("assignment = %+v", got)
	}
	if got.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", got.Confidence)
	}
}

func TestClassifyPriorityOrderWinsOverScore(t *testing.T) {
	s := newTestStore(t)
	courses := categoryID(t, s, "/Learning/Courses")
	video := categoryID(t, s, "/Entertainment/Video")

	// A high-priority contains mapping on the title and a lower-priority
	// exact mapping on the domain both apply. Priority decides, not the
	// per-field score.
	addMapping(t, s, store.CategoryMapping{
		CategoryID: courses, TitlePattern: "tutorial", MatchType: store.MatchContains, Priority: 80,
	})
	addMapping(t, s, store.CategoryMapping{
		CategoryID: video, Domain: "youtube.com", MatchType: store.MatchExact, Priority: 60,
	})

	c := NewClassifier(s, nil, logger.NewNop())
	got, err := c.Classify(testUser, store.Activity{
		UserID:    testUser,
		OwnerName: "Browser",
		Title:     "Go concurrency tutorial",
		URL:       str("https://www.youtube.com/watch?v=x"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.CategoryID != courses {
		t.Fatalf("assignment = %+v, want /Learning/Courses", got)
	}
	if got.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want contains score 0.8", got.Confidence)
	}
}

func TestClassifyMultiFieldMappingRequiresAllFields(t *testing.T) {
	s := newTestStore(t)
	courses := categoryID(t, s, "/Learning/Courses")
	video := categoryID(t, s, "/Entertainment/Video")

	// Both fields of the high-priority mapping must match; the domain alone
	// is not enough, so non-tutorial videos fall through to the catch-all.
	addMapping(t, s, store.CategoryMapping{
		CategoryID: courses, Domain: "youtube.com", TitlePattern: "tutorial",
		MatchType: store.MatchRegex, Priority: 90,
	})
	addMapping(t, s, store.CategoryMapping{
		CategoryID: video, Domain: "youtube.com", MatchType: store.MatchExact, Priority: 80,
	})

	c := NewClassifier(s, nil, logger.NewNop())
	watch := func(title string) *Assignment {
		t.Helper()
		got, err := c.Classify(testUser, store.Activity{
			UserID:    testUser,
			OwnerName: "Browser",
			Title:     title,
			URL:       str("https://www.youtube.com/watch?v=x"),
		})
		if err != nil {
			t.Fatal(err)
		}
		if got == nil {
			t.Fatalf("no assignment for title %q", title)
		}
		return got
	}

	if got := watch("Go concurrency tutorial"); got.CategoryID != courses {
		t.Fatalf("tutorial title = %+v, want /Learning/Courses", got)
	}
	if got := watch("cat videos compilation"); got.CategoryID != video {
		t.Fatalf("non-tutorial title = %+v, want /Entertainment/Video", got)
	}
}

func TestMappingScoreConjunction(t *testing.T) {
	activity := store.Activity{OwnerName: "Browser", Title: "daily standup notes"}
	m := store.CategoryMapping{
		AppName: "Browser", TitlePattern: "standup", MatchType: store.MatchContains,
	}
	if got := mappingScore(m, activity, ""); got != 0.8 {
		t.Fatalf("both fields match, score = %v, want 0.8", got)
	}
	m.TitlePattern = "retro"
	if got := mappingScore(m, activity, ""); got != 0 {
		t.Fatalf("failing title must zero the mapping, score = %v", got)
	}
	m = store.CategoryMapping{Domain: "example.com", MatchType: store.MatchExact}
	if got := mappingScore(m, activity, ""); got != 0 {
		t.Fatalf("domain mapping without a URL must not match, score = %v", got)
	}
}

func TestClassifyNoMatchStaysUncategorized(t *testing.T) {
	s := newTestStore(t)
	c := NewClassifier(s, nil, logger.NewNop())

	got, err := c.Classify(testUser, store.Activity{UserID: testUser, OwnerName: "Unknown"})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil assignment, got %+v", got)
	}
}

func TestClassifyBrokenRegexIsNonMatch(t *testing.T) {
	s := newTestStore(t)
	dev := categoryID(t, s, "/Work/Development")
	addMapping(t, s, store.CategoryMapping{
		CategoryID: dev, TitlePattern: "([unclosed", MatchType: store.MatchRegex, Priority: 80,
	})

	c := NewClassifier(s, nil, logger.NewNop())
	got, err := c.Classify(testUser, store.Activity{UserID: testUser, OwnerName: "Editor", Title: "([unclosed"})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("broken pattern must not classify, got %+v", got)
	}
}

func TestClassifyMetadataLearnsMapping(t *testing.T) {
	s := newTestStore(t)
	dev := categoryID(t, s, "/Work/Development")

	c := NewClassifier(s, platform.NewStaticResolver(), logger.NewNop())
	a := store.Activity{
		UserID:        testUser,
		OwnerName:     "Code",
		Title:         "main.go",
		OwnerBundleID: str("com.microsoft.VSCode"),
	}

	got, err := c.Classify(testUser, a)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.CategoryID != dev || got.Source != SourceMetadata {
		t.Fatalf("assignment = %+v", got)
	}
	if got.Confidence != platform.ConfidenceDeclaredCategory {
		t.Fatalf("confidence = %v", got.Confidence)
	}

	// The suggestion persisted a low-priority mapping, so the same app
	// now resolves in Tier 1.
	mappings, err := s.ListActiveMappings(testUser)
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 1 || mappings[0].AppName != "Code" || mappings[0].Priority != metadataMappingPriority {
		t.Fatalf("learned mapping = %+v", mappings)
	}

	again, err := c.Classify(testUser, a)
	if err != nil {
		t.Fatal(err)
	}
	if again == nil || again.Source != SourceMapping {
		t.Fatalf("second pass = %+v, want Tier 1 hit", again)
	}
}

func TestClassifyMappingOutranksMetadata(t *testing.T) {
	s := newTestStore(t)
	video := categoryID(t, s, "/Entertainment/Video")
	addMapping(t, s, store.CategoryMapping{
		CategoryID: video, AppName: "Code", MatchType: store.MatchExact, Priority: 80,
	})

	c := NewClassifier(s, platform.NewStaticResolver(), logger.NewNop())
	got, err := c.Classify(testUser, store.Activity{
		UserID:        testUser,
		OwnerName:     "Code",
		OwnerBundleID: str("com.microsoft.VSCode"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.CategoryID != video || got.Source != SourceMapping {
		t.Fatalf("assignment = %+v, want user mapping to win", got)
	}
}

func TestClassifyMetadataBelowThresholdIgnored(t *testing.T) {
	s := newTestStore(t)

	resolver := fixedResolver{
		suggestion: platform.CategorySuggestion{CategoryPath: "/Work", Confidence: 0.5},
		ok:         true,
	}
	c := NewClassifier(s, resolver, logger.NewNop())
	got, err := c.Classify(testUser, store.Activity{
		UserID:        testUser,
		OwnerName:     "Mystery",
		OwnerBundleID: str("com.example.mystery"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("low-confidence suggestion must be ignored, got %+v", got)
	}
	mappings, _ := s.ListActiveMappings(testUser)
	if len(mappings) != 0 {
		t.Fatalf("no mapping should be learned, got %+v", mappings)
	}
}

func TestClassifyMetadataUnknownPathIgnored(t *testing.T) {
	s := newTestStore(t)

	resolver := fixedResolver{
		suggestion: platform.CategorySuggestion{CategoryPath: "/Nonexistent", Confidence: 0.95},
		ok:         true,
	}
	c := NewClassifier(s, resolver, logger.NewNop())
	got, err := c.Classify(testUser, store.Activity{
		UserID:        testUser,
		OwnerName:     "Mystery",
		OwnerBundleID: str("com.example.mystery"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("unknown category path must be ignored, got %+v", got)
	}
}

func TestFieldScores(t *testing.T) {
	cases := []struct {
		matchType string
		pattern   string
		value     string
		want      float64
	}{
		{store.MatchExact, "Editor", "editor", 1.0},
		{store.MatchExact, "Editor", "editors", 0},
		{store.MatchStartsWith, "edi", "Editor", 0.9},
		{store.MatchContains, "dit", "Editor", 0.8},
		{store.MatchRegex, "^Edi.or$", "Editor", 0.85},
		{store.MatchRegex, "^X", "Editor", 0},
		{store.MatchExact, "Editor", "", 0},
	}
	for _, tc := range cases {
		if got := fieldScore(tc.matchType, tc.pattern, tc.value); got != tc.want {
			t.Errorf("fieldScore(%s, %q, %q) = %v, want %v", tc.matchType, tc.pattern, tc.value, got, tc.want)
		}
	}
}

package platform

import "strings"

// Metadata confidence levels for bundle lookups.
const (
	ConfidenceDeclaredCategory = 0.95
	ConfidenceVendorPrefix     = 0.85
)

// CategorySuggestion is an OS-derived guess at what kind of app a bundle is.
type CategorySuggestion struct {
	CategoryPath string // taxonomy path, e.g. /Work/Development
	Confidence   float64
}

// MetadataResolver maps a bundle identifier to a category suggestion. It is
// the classifier's Tier 2: consulted only when no user mapping matched and a
// bundle id is available.
type MetadataResolver interface {
	Resolve(bundleID string) (CategorySuggestion, bool)
}

// NoopResolver is used on platforms without bundle metadata.
type NoopResolver struct{}

func (NoopResolver) Resolve(string) (CategorySuggestion, bool) {
	return CategorySuggestion{}, false
}

// StaticResolver resolves against a built-in table: exact bundle ids carry
// the declared-category confidence, vendor prefixes the lower one.
type StaticResolver struct {
	bundles  map[string]string
	prefixes map[string]string
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		bundles: map[string]string{
			"com.microsoft.VSCode":        "/Work/Development",
			"com.apple.dt.Xcode":          "/Work/Development",
			"com.jetbrains.intellij":      "/Work/Development",
			"com.googlecode.iterm2":       "/Work/Development",
			"com.apple.Terminal":          "/Work/Development",
			"com.tinyspeck.slackmacgap":   "/Work/Meetings",
			"us.zoom.xos":                 "/Work/Meetings",
			"com.microsoft.teams2":        "/Work/Meetings",
			"com.apple.Notes":             "/Work/Writing",
			"notion.id":                   "/Work/Writing",
			"com.spotify.client":          "/Entertainment",
			"com.apple.TV":                "/Entertainment/Video",
			"com.valvesoftware.steam":     "/Entertainment/Games",
			"com.apple.MobileSMS":         "/Social",
			"com.hnc.Discord":             "/Social",
			"ru.keepcoder.Telegram":       "/Social",
			"com.apple.finder":            "/Utilities",
			"com.apple.systempreferences": "/Utilities",
		},
		prefixes: map[string]string{
			"com.jetbrains.": "/Work/Development",
			"com.apple.dt.":  "/Work/Development",
			"com.unity3d.":   "/Work/Development",
			"com.adobe.":     "/Work",
			"com.epicgames.": "/Entertainment/Games",
		},
	}
}

func (r *StaticResolver) Resolve(bundleID string) (CategorySuggestion, bool) {
	if bundleID == "" {
		return CategorySuggestion{}, false
	}
	if path, ok := r.bundles[bundleID]; ok {
		return CategorySuggestion{CategoryPath: path, Confidence: ConfidenceDeclaredCategory}, true
	}
	for prefix, path := range r.prefixes {
		if strings.HasPrefix(bundleID, prefix) {
			return CategorySuggestion{CategoryPath: path, Confidence: ConfidenceVendorPrefix}, true
		}
	}
	return CategorySuggestion{}, false
}

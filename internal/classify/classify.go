// Package classify assigns categories to activities through a two-tier
// waterfall: user-authored mappings first, then OS bundle metadata with a
// confidence gate. Unresolved activities stay uncategorized.
package classify

import (
	"regexp"
	"strings"

	"github.com/sadopc/lightbeam/internal/logger"
	"github.com/sadopc/lightbeam/internal/platform"
	"github.com/sadopc/lightbeam/internal/rules"
	"github.com/sadopc/lightbeam/internal/store"
)

const (
	// scoreThreshold is the minimum field score for a mapping to apply.
	scoreThreshold = 0.5
	// metadataThreshold gates Tier 2 suggestions.
	metadataThreshold = 0.8
	// metadataMappingPriority is assigned to mappings learned from Tier 2,
	// low enough that any user-authored mapping outranks them.
	metadataMappingPriority = 40
)

// Match-type scores, highest to lowest confidence.
var matchTypeScores = map[string]float64{
	store.MatchExact:      1.0,
	store.MatchStartsWith: 0.9,
	store.MatchRegex:      0.85,
	store.MatchContains:   0.8,
}

// Source of an assignment.
const (
	SourceMapping  = "mapping"
	SourceMetadata = "metadata"
)

// Assignment is a classification decision. The caller persists it.
type Assignment struct {
	CategoryID int64
	Confidence float64
	Source     string
	MappingID  int64 // set for SourceMapping
}

// MappingStore is the slice of the store the classifier needs.
type MappingStore interface {
	ListActiveMappings(userID string) ([]store.CategoryMapping, error)
	UpsertMapping(m store.CategoryMapping) (*store.CategoryMapping, error)
	GetCategoryByPath(userID, path string) (*store.Category, error)
}

type Classifier struct {
	store    MappingStore
	resolver platform.MetadataResolver
	log      *logger.Logger
}

func NewClassifier(s MappingStore, resolver platform.MetadataResolver, log *logger.Logger) *Classifier {
	if resolver == nil {
		resolver = platform.NoopResolver{}
	}
	return &Classifier{store: s, resolver: resolver, log: log}
}

// Classify runs the waterfall for one activity. A nil assignment with a nil
// error means the activity stays uncategorized.
func (c *Classifier) Classify(userID string, a store.Activity) (*Assignment, error) {
	if assignment, err := c.matchMappings(userID, a); assignment != nil || err != nil {
		return assignment, err
	}
	return c.matchMetadata(userID, a)
}

// matchMappings is Tier 1. Mappings arrive priority-sorted; the first one
// scoring above the threshold wins, so a later mapping never outranks an
// earlier one even with a higher field score.
func (c *Classifier) matchMappings(userID string, a store.Activity) (*Assignment, error) {
	mappings, err := c.store.ListActiveMappings(userID)
	if err != nil {
		return nil, err
	}

	domain := ""
	if a.URL != nil {
		domain = rules.ExtractDomain(*a.URL)
	}

	for _, m := range mappings {
		score := mappingScore(m, a, domain)
		if score > scoreThreshold {
			return &Assignment{
				CategoryID: m.CategoryID,
				Confidence: score,
				Source:     SourceMapping,
				MappingID:  m.ID,
			}, nil
		}
	}
	return nil, nil
}

// mappingScore treats every populated field as a conjunct: all of them must
// match or the mapping scores 0. The score is the best field score, so a
// multi-field mapping keeps the confidence of its strongest match.
func mappingScore(m store.CategoryMapping, a store.Activity, domain string) float64 {
	best := 0.0
	populated := false
	check := func(pattern, value string) bool {
		populated = true
		s := fieldScore(m.MatchType, pattern, value)
		if s == 0 {
			return false
		}
		if s > best {
			best = s
		}
		return true
	}
	if m.AppName != "" && !check(m.AppName, a.OwnerName) {
		return 0
	}
	if m.Domain != "" && !check(m.Domain, domain) {
		return 0
	}
	if m.TitlePattern != "" && !check(m.TitlePattern, a.Title) {
		return 0
	}
	if !populated {
		return 0
	}
	return best
}

func fieldScore(matchType, pattern, value string) float64 {
	if value == "" {
		return 0
	}
	matched := false
	switch matchType {
	case store.MatchExact:
		matched = strings.EqualFold(pattern, value)
	case store.MatchStartsWith:
		matched = strings.HasPrefix(strings.ToLower(value), strings.ToLower(pattern))
	case store.MatchContains:
		matched = strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
	case store.MatchRegex:
		re, err := regexp.Compile(pattern)
		if err != nil {
			// A broken pattern is a non-match, never fatal.
			return 0
		}
		matched = re.MatchString(value)
	}
	if !matched {
		return 0
	}
	return matchTypeScores[matchType]
}

// matchMetadata is Tier 2: bundle metadata lookup, gated on confidence. An
// accepted suggestion persists a low-priority mapping so the next activity
// from the same app resolves in Tier 1 without the OS call.
func (c *Classifier) matchMetadata(userID string, a store.Activity) (*Assignment, error) {
	if a.OwnerBundleID == nil || *a.OwnerBundleID == "" {
		return nil, nil
	}
	suggestion, ok := c.resolver.Resolve(*a.OwnerBundleID)
	if !ok || suggestion.Confidence < metadataThreshold {
		return nil, nil
	}

	category, err := c.store.GetCategoryByPath(userID, suggestion.CategoryPath)
	if err != nil {
		return nil, err
	}
	if category == nil {
		c.log.Debug("metadata suggestion has no matching category",
			"bundle_id", *a.OwnerBundleID, "path", suggestion.CategoryPath)
		return nil, nil
	}

	mapping, err := c.store.UpsertMapping(store.CategoryMapping{
		UserID:     userID,
		CategoryID: category.ID,
		AppName:    a.OwnerName,
		MatchType:  store.MatchExact,
		Priority:   metadataMappingPriority,
		IsActive:   true,
	})
	if err != nil {
		// The classification itself still stands; losing the learned
		// mapping only costs a repeat lookup next time.
		c.log.Warn("persist learned mapping failed", "error", err)
	} else {
		c.log.Debug("learned mapping from bundle metadata",
			"mapping_id", mapping.ID, "category", suggestion.CategoryPath)
	}

	return &Assignment{
		CategoryID: category.ID,
		Confidence: suggestion.Confidence,
		Source:     SourceMetadata,
	}, nil
}

package store

import "time"

// Activity ratings. A nil rating means the activity has not been judged yet.
const (
	RatingDistracting = 0
	RatingProductive  = 1
)

// Title match conditions on rules.
const (
	TitleCondContains   = "contains"
	TitleCondStartsWith = "startsWith"
	TitleCondEndsWith   = "endsWith"
	TitleCondEquals     = "="
)

// Duration conditions on rules.
const (
	DurCondGreater      = ">"
	DurCondLess         = "<"
	DurCondEquals       = "="
	DurCondGreaterEqual = ">="
	DurCondLessEqual    = "<="
)

// Category mapping match types.
const (
	MatchExact      = "exact"
	MatchContains   = "contains"
	MatchStartsWith = "starts_with"
	MatchRegex      = "regex"
)

// DefaultMergeWindow is how far back a sample may look for an existing
// activity row with the same signature before a new row is created.
const DefaultMergeWindow = 15 * time.Minute

// Activity is one merged unit of foreground-window time.
type Activity struct {
	ID             int64
	UserID         string
	Timestamp      time.Time
	Platform       string
	Title          string
	OwnerName      string
	OwnerPath      string
	OwnerProcessID int64
	OwnerBundleID  *string
	URL            *string
	Duration       int64 // seconds, additive across merges
	IsFocusMode    bool
	TimeEntryID    *int64
	Rating         *int
	CategoryID     *int64
}

// Rule is a user-authored productivity judgment.
type Rule struct {
	ID                int64
	UserID            string
	AppName           string
	Domain            string
	Title             string
	TitleCondition    string
	Duration          *int64 // seconds
	DurationCondition string
	Rating            int
	Active            bool
	CreatedAt         time.Time
}

// Category is a node in the hierarchical taxonomy.
type Category struct {
	ID        int64
	UserID    string
	Name      string
	ParentID  *int64
	Path      string // materialized, /-joined ancestor names
	Level     int    // 0 = root
	SortOrder int
	IsSystem  bool
	CreatedAt time.Time
}

// CategoryMapping assigns a category to matching activities.
type CategoryMapping struct {
	ID           int64
	UserID       string
	CategoryID   int64
	AppName      string
	Domain       string
	TitlePattern string
	MatchType    string
	Priority     int // higher wins
	IsActive     bool
	CreatedAt    time.Time
}

// TimeEntry is one focus or break session.
type TimeEntry struct {
	ID                int64
	UserID            string
	StartTime         time.Time
	EndTime           *time.Time
	Duration          *int64 // seconds, set at close
	IsFocusMode       bool
	TargetDuration    *int64 // minutes
	AutoStopEnabled   bool
	NotificationStage int
	Whitelisted       string // comma-joined activity names exempt from warnings
	BoardID           *int64
	ItemID            *int64
	CreatedAt         time.Time
}

// ScheduledSession is a recurring template that can start a TimeEntry.
type ScheduledSession struct {
	ID            int64
	UserID        string
	Name          string
	DaysOfWeek    string // comma-joined weekday numbers, 0 = Sunday
	StartTime     string // HH:MM, local time
	FocusDuration int64  // minutes
	BreakDuration int64  // minutes
	Cycles        int
	AutoStart     bool
	Active        bool
	LastRun       *time.Time
	NextRun       *time.Time
	CreatedAt     time.Time
}

type Setting struct {
	Key   string
	Value string
}

// ActivityFilter narrows ListActivities.
type ActivityFilter struct {
	TimeEntryID   *int64
	Uncategorized bool
	From          *time.Time
	To            *time.Time
	Limit         int
}

// UncategorizedGroup aggregates unclassified activities by domain (when a URL
// is present) or app name, for bulk assignment.
type UncategorizedGroup struct {
	Key          string // domain or app name
	IsDomain     bool
	Count        int
	TotalSeconds int64
}

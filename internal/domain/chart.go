package domain

import (
	"strings"
	"time"
)

// StrategyKind selects how a strategy obtains raw content.
type StrategyKind string

const (
	StrategyStatic   StrategyKind = "static"
	StrategyRendered StrategyKind = "rendered"
)

// RankMode tells the rank computer which key orders a chart.
type RankMode string

const (
	RankByPosition RankMode = "position"
	RankByScore    RankMode = "score"
)

// Period is the acquisition granularity of a source.
type Period string

const (
	PeriodDaily Period = "daily"
)

// Canonical field names used by field mappings and required-field lists.
const (
	FieldRank        = "rank"
	FieldTitle       = "title"
	FieldArtist      = "artist"
	FieldScore       = "score"
	FieldExternalRef = "externalRef"
)

// PositionKey is emitted by every scanner with the 1-based row ordinal.
const PositionKey = "@position"

// ParseScheme tells a scanner where records and columns live in a document.
type ParseScheme struct {
	// Row is a CSS selector (html) or dotted path to the item array (json).
	Row string
	// Columns maps raw field names to a selector, header name or dotted path.
	Columns  map[string]string
	SkipRows int
}

// FetchStrategy is one candidate way of obtaining a source's raw records.
type FetchStrategy struct {
	Name string
	Kind StrategyKind
	// URL may contain {region} and {regionParam} placeholders.
	URL     string
	Headers map[string]string
	Timeout time.Duration

	// Rendered-only settings.
	ReadyMarker     string
	DismissSelector string
	ScrollToBottom  bool
	FollowLink      string

	Parser string
	Scheme ParseScheme

	// SubstituteRegion re-runs the strategy named by SubstituteOf for another region.
	SubstituteRegion string
	SubstituteOf     string
}

// IsSubstitution reports whether the strategy only swaps the region of an earlier one.
func (s FetchStrategy) IsSubstitution() bool {
	return s.SubstituteRegion != ""
}

// ChartSource is the immutable description of one upstream chart.
type ChartSource struct {
	ID     string
	Title  string
	Region string
	// RegionParams resolves {regionParam} per region (e.g. playlist ids).
	RegionParams map[string]string
	RegionNames  map[string]string
	Period       Period

	Strategies     []FetchStrategy
	FieldMapping   map[string][]string
	RequiredFields []string
	RankMode       RankMode
	TitleDelimiter string
	MaxEntries     int

	ExternalRefTemplate string
	PostTitle           string
}

// RegionName returns the display name for region, falling back to its upper-cased code.
func (s ChartSource) RegionName(region string) string {
	if name, ok := s.RegionNames[region]; ok && name != "" {
		return name
	}
	return strings.ToUpper(region)
}

// RawRecord is one unprocessed row produced by a scanner.
type RawRecord map[string]any

// CanonicalEntry is a validated chart row.
type CanonicalEntry struct {
	SourceID    string  `json:"sourceId"`
	Rank        int     `json:"rank"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Score       float64 `json:"score"`
	ExternalRef string  `json:"externalRef"`
}

// RunStatus is the outcome of an aggregation run.
type RunStatus string

const (
	StatusSuccess        RunStatus = "success"
	StatusPartialSuccess RunStatus = "partial_success"
	StatusFailed         RunStatus = "failed"
)

// Publishable reports whether a run carries entries worth handing to a gateway.
func (s RunStatus) Publishable() bool {
	return s == StatusSuccess || s == StatusPartialSuccess
}

// AttemptLog records why one strategy attempt did not produce data.
type AttemptLog struct {
	Strategy string `json:"strategy"`
	Region   string `json:"region,omitempty"`
	Error    string `json:"error"`
}

// ArtifactSchemaVersion is bumped whenever the persisted document changes shape.
const ArtifactSchemaVersion = 1

// AggregationRun is the finalized chart of one source for one period.
type AggregationRun struct {
	SchemaVersion int              `json:"schemaVersion"`
	Revision      string           `json:"revision"`
	SourceID      string           `json:"sourceId"`
	PeriodKey     string           `json:"periodKey"`
	AcquiredAt    time.Time        `json:"acquiredAt"`
	Status        RunStatus        `json:"status"`
	Strategy      string           `json:"strategy,omitempty"`
	Region        string           `json:"region,omitempty"`
	FailureReason FailureReason    `json:"failureReason,omitempty"`
	Attempts      []AttemptLog     `json:"attempts,omitempty"`
	Entries       []CanonicalEntry `json:"entries"`
}

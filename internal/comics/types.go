package comics

import (
	"strings"
	"time"
)

// Record is one archived strip row.
type Record struct {
	Date       string `db:"date" json:"date"`
	ImagePath  string `db:"image_path" json:"image_path"`
	Transcript string `db:"transcript" json:"transcript"`
}

// NewRecord builds the record for a date with its deterministic image path.
func NewRecord(date time.Time, transcript string) Record {
	return Record{
		Date:       FormatDate(date),
		ImagePath:  AssetPath(date),
		Transcript: transcript,
	}
}

// Tag is a vocabulary entry.
type Tag struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Stats summarizes store contents.
type Stats struct {
	Comics    int    `db:"comics" json:"comics"`
	Tags      int    `db:"tags" json:"tags"`
	Links     int    `db:"links" json:"links"`
	FirstDate string `db:"first_date" json:"first_date"`
	LastDate  string `db:"last_date" json:"last_date"`
}

// Snapshot identifies one archived capture of a strip page.
type Snapshot struct {
	Date      time.Time
	Timestamp string
	SourceURL string
	PageURL   string
}

// Metadata is what the page extractor recovers from an archived page.
type Metadata struct {
	// HasMetadata is false when the metadata container was absent.
	HasMetadata bool
	Transcript  string
	Tags        []string
	// AssetRef is the raw image src, empty when no image element exists.
	AssetRef string
}

// Outcome classifies a single fetch.
type Outcome int

// Fetch outcomes.
const (
	OutcomeOK Outcome = iota
	OutcomeRateLimited
	OutcomeNonSuccess
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeNonSuccess:
		return "non_success"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Response is the classified result of one GET.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Outcome    Outcome
	Duration   time.Duration
	// Cause is set for transport errors.
	Cause error
}

// Error converts a non-OK response into a typed error, nil otherwise.
func (r Response) Error() error {
	switch r.Outcome {
	case OutcomeOK:
		return nil
	case OutcomeTransportError:
		return &TransportError{URL: r.URL, Err: r.Cause}
	default:
		return &StatusError{URL: r.URL, StatusCode: r.StatusCode}
	}
}

// Classify maps an HTTP status code to an outcome.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeOK
	case status == 429:
		return OutcomeRateLimited
	case status == 0:
		return OutcomeTransportError
	default:
		return OutcomeNonSuccess
	}
}

// NormalizeTag trims whitespace and a single leading '#'.
func NormalizeTag(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "#")
	return strings.TrimSpace(name)
}

// likeEscaper escapes LIKE wildcards for use with ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern returns a LIKE pattern matching text literally anywhere in
// a column.
func ContainsPattern(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}

// ItemOutcome is the terminal state of one date in a run.
type ItemOutcome string

// Terminal item outcomes.
const (
	ItemCompleted         ItemOutcome = "completed"
	ItemAlreadyComplete   ItemOutcome = "already_complete"
	ItemSkippedNoSnapshot ItemOutcome = "skipped_no_snapshot"
	ItemAssetMissing      ItemOutcome = "asset_missing"
	ItemFailed            ItemOutcome = "failed"
	ItemCanceled          ItemOutcome = "canceled"
)

// ItemOutcomes lists every outcome in reporting order.
var ItemOutcomes = []ItemOutcome{
	ItemCompleted,
	ItemAlreadyComplete,
	ItemSkippedNoSnapshot,
	ItemAssetMissing,
	ItemFailed,
	ItemCanceled,
}

// Valid reports whether o is a known outcome.
func (o ItemOutcome) Valid() bool {
	for _, known := range ItemOutcomes {
		if o == known {
			return true
		}
	}
	return false
}

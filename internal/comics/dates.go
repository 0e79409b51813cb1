package comics

import (
	"fmt"
	"path"
	"strconv"
	"time"
)

// DateLayout is the canonical rendering of a strip date.
const DateLayout = "2006-01-02"

// Fixed bounds of the strip archive.
var (
	FirstStrip = time.Date(1989, time.April, 16, 0, 0, 0, 0, time.UTC)
	LastStrip  = time.Date(2023, time.March, 12, 0, 0, 0, 0, time.UTC)
)

const (
	// SourceRoot is the canonical page prefix of the original site.
	SourceRoot = "https://dilbert.com/strip/"
	// SourceReferer is sent with every upstream request.
	SourceReferer = "https://dilbert.com/"
	// AssetPrefix and AssetExt name files as {year}/{AssetPrefix}_{date}.{AssetExt}.
	AssetPrefix = "Dilbert"
	AssetExt    = "png"
)

// ParseDate parses YYYY-MM-DD into a UTC midnight time.
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Truncate drops the clock portion so dates compare by calendar day.
func Truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange returns every calendar day in [start, end] in chronological order.
// An inverted range yields nil.
func DateRange(start, end time.Time) []time.Time {
	start, end = Truncate(start), Truncate(end)
	if end.Before(start) {
		return nil
	}
	days := int(end.Sub(start).Hours()/24) + 1
	out := make([]time.Time, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// InArchive reports whether the date falls inside the published range.
func InArchive(t time.Time) bool {
	t = Truncate(t)
	return !t.Before(FirstStrip) && !t.After(LastStrip)
}

// SourceURL is the original page address for a strip date.
func SourceURL(t time.Time) string {
	return SourceRoot + FormatDate(t)
}

// AssetPath is the deterministic slash-separated path of the strip image
// relative to the asset root.
func AssetPath(t time.Time) string {
	return path.Join(strconv.Itoa(t.UTC().Year()), fmt.Sprintf("%s_%s.%s", AssetPrefix, FormatDate(t), AssetExt))
}

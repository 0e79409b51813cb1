package pipeline

import "time"

// Stage is the position of a WorkItem in its per-date state machine.
type Stage int

// Item stages in processing order.
const (
	StagePending Stage = iota
	StageResolving
	StageExtracting
	StagePersisting
	StageAssetFetching
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "PENDING"
	case StageResolving:
		return "RESOLVING"
	case StageExtracting:
		return "EXTRACTING"
	case StagePersisting:
		return "PERSISTING"
	case StageAssetFetching:
		return "ASSET_FETCHING"
	case StageDone:
		return "DONE"
	case StageFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// WorkItem is one date moving through the pipeline. Attempt starts at 1.
type WorkItem struct {
	Date    time.Time
	Attempt int
	Stage   Stage
}

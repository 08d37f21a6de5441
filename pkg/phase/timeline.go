// Package phase maps wall-clock time onto the configured pricing phases.
package phase

import (
	"math"

	"presale/pkg/config"
)

// Segment is a phase with its absolute start and end (unix seconds).
type Segment struct {
	Def   config.PhaseDef
	Index int
	Start int64
	End   int64
}

// DurationSeconds converts a length in days to whole seconds, at least 1.
func DurationSeconds(days float64) int64 {
	if math.IsNaN(days) || days <= 0 {
		return 1
	}
	secs := math.Floor(days * 86400)
	if math.IsInf(secs, 1) || secs > math.MaxInt64/4 {
		return math.MaxInt64 / 4
	}
	if secs < 1 {
		return 1
	}
	return int64(secs)
}

// BuildTimeline lays the phases end to end from the sale start. It returns
// nil when the sale is unscheduled.
func BuildTimeline(cfg *config.SaleConfig) []Segment {
	if cfg == nil || cfg.SaleStartTime == 0 || len(cfg.Phases) == 0 {
		return nil
	}
	timeline := make([]Segment, 0, len(cfg.Phases))
	cursor := cfg.SaleStartTime
	for i, def := range cfg.Phases {
		end := cursor + DurationSeconds(def.Days())
		timeline = append(timeline, Segment{Def: def, Index: i, Start: cursor, End: end})
		cursor = end
	}
	return timeline
}

// Status is the kind of a Resolution.
type Status int

const (
	Unscheduled Status = iota
	NotStarted
	InPhase
	Ended
)

func (s Status) String() string {
	switch s {
	case Unscheduled:
		return "unscheduled"
	case NotStarted:
		return "not_started"
	case InPhase:
		return "in_phase"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Resolution is where "now" falls on the timeline. Boundary is the instant
// the countdown runs to; Index is only meaningful for InPhase.
type Resolution struct {
	Status   Status
	Index    int
	Boundary int64
}

// Resolve places now relative to the timeline.
func Resolve(timeline []Segment, saleStart, now int64) Resolution {
	if saleStart == 0 || len(timeline) == 0 {
		return Resolution{Status: Unscheduled, Index: -1}
	}
	if now < saleStart {
		return Resolution{Status: NotStarted, Index: -1, Boundary: saleStart}
	}
	for i, seg := range timeline {
		if seg.Start <= now && now < seg.End {
			return Resolution{Status: InPhase, Index: i, Boundary: seg.End}
		}
	}
	return Resolution{Status: Ended, Index: len(timeline), Boundary: timeline[len(timeline)-1].End}
}

// Class is a segment's position relative to the current resolution.
type Class string

const (
	Past    Class = "past"
	Current Class = "current"
	Future  Class = "future"
)

// Classify returns the class of segment i under res.
func Classify(res Resolution, i int) Class {
	switch res.Status {
	case Ended:
		return Past
	case InPhase:
		switch {
		case i < res.Index:
			return Past
		case i == res.Index:
			return Current
		}
	}
	return Future
}

// At builds the timeline and resolves now in one step.
func At(cfg *config.SaleConfig, now int64) ([]Segment, Resolution) {
	timeline := BuildTimeline(cfg)
	var start int64
	if cfg != nil {
		start = cfg.SaleStartTime
	}
	return timeline, Resolve(timeline, start, now)
}
